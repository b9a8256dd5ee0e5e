package jobs

const (
	JobTypeChatRespond    = "chat_respond"
	JobTypeCostCalculate  = "cost_calculate"
	JobTypeDocumentOCR    = "document_ocr"
	JobTypeDocumentEmbed  = "document_embed"
	EntityTypeChatThread  = "chat_thread"
	EntityTypeChatMessage = "chat_message"
	EntityTypeDocument    = "document"
)
