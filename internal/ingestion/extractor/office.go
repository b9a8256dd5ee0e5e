package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
)

const maxZipEntryBytes = 64 << 20

// ExtractDocx returns the paragraph text of word/document.xml, one paragraph
// per line.
func ExtractDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	body, err := readZipFile(zr.File, "word/document.xml")
	if err != nil {
		return "", err
	}

	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		out    strings.Builder
		para   strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br":
				para.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(para.String()); s != "" {
					out.WriteString(s)
					out.WriteByte('\n')
				}
				para.Reset()
			}
		}
	}
	return strings.TrimSpace(out.String()), nil
}

// ExtractXlsx renders every worksheet as tab-separated rows, sheets in
// workbook file order.
func ExtractXlsx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open xlsx: %w", err)
	}

	var shared []string
	if body, err := readZipFile(zr.File, "xl/sharedStrings.xml"); err == nil {
		if shared, err = parseSharedStrings(body); err != nil {
			return "", err
		}
	}

	var sheets []*zip.File
	for _, f := range zr.File {
		if path.Dir(f.Name) == "xl/worksheets" && strings.HasSuffix(f.Name, ".xml") {
			sheets = append(sheets, f)
		}
	}
	sort.Slice(sheets, func(i, j int) bool { return sheetNumber(sheets[i].Name) < sheetNumber(sheets[j].Name) })

	var out strings.Builder
	for _, f := range sheets {
		body, err := readEntry(f)
		if err != nil {
			return "", err
		}
		if err := writeSheet(&out, body, shared); err != nil {
			return "", fmt.Errorf("parse %s: %w", f.Name, err)
		}
	}
	return strings.TrimSpace(out.String()), nil
}

func parseSharedStrings(body []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		out    []string
		cur    strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse shared strings: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "si":
				cur.Reset()
			case "t":
				inText = true
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "si":
				out = append(out, cur.String())
			}
		}
	}
}

func writeSheet(out *strings.Builder, body []byte, shared []string) error {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		row      []string
		cellType string
		val      strings.Builder
		inValue  bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "row":
				row = row[:0]
			case "c":
				cellType = ""
				val.Reset()
				for _, a := range t.Attr {
					if a.Name.Local == "t" {
						cellType = a.Value
					}
				}
			case "v", "t":
				inValue = true
			}
		case xml.CharData:
			if inValue {
				val.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "v", "t":
				inValue = false
			case "c":
				row = append(row, cellText(cellType, val.String(), shared))
			case "row":
				line := strings.TrimRight(strings.Join(row, "\t"), "\t")
				if strings.TrimSpace(line) != "" {
					out.WriteString(line)
					out.WriteByte('\n')
				}
			}
		}
	}
}

func cellText(cellType, raw string, shared []string) string {
	raw = strings.TrimSpace(raw)
	if cellType != "s" {
		return raw
	}
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 || i >= len(shared) {
		return ""
	}
	return shared[i]
}

// sheetNumber orders sheet2.xml before sheet10.xml.
func sheetNumber(name string) int {
	base := strings.TrimSuffix(path.Base(name), ".xml")
	n, err := strconv.Atoi(strings.TrimPrefix(base, "sheet"))
	if err != nil {
		return 1 << 30
	}
	return n
}

func readZipFile(files []*zip.File, name string) ([]byte, error) {
	for _, f := range files {
		if f.Name == name {
			return readEntry(f)
		}
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, maxZipEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxZipEntryBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", f.Name, maxZipEntryBytes)
	}
	return b, nil
}
