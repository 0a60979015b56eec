// Package pdftest generates small PDF files for tests.
package pdftest

import (
	"bytes"
	"fmt"
)

// Build numbers the object bodies 1..n, writes a classic xref table and a
// trailer whose /Root is object 1.
func Build(objects ...string) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xrefOffset := buf.Len()
	fmt.Fprintf(buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(buf, "trailer\n<< /Size %d /Root 1 0 R >>\n", len(objects)+1)
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}

// Stream formats a stream object body with a correct /Length. extra is
// spliced into the dictionary.
func Stream(extra string, data []byte) string {
	return fmt.Sprintf("<< /Length %d %s>>\nstream\n%s\nendstream", len(data), extra, data)
}

// Page describes one page of a generated document.
type Page struct {
	Width, Height float64
	Content       string
	Rotate        int
}

// Document builds a document with one Helvetica (WinAnsi) font shared by
// every page under the resource name F1.
func Document(pages ...Page) []byte {
	objs := []string{"<< /Type /Catalog /Pages 2 0 R >>", ""}
	objs = append(objs, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	kids := ""
	for _, p := range pages {
		pageNum := len(objs) + 1
		contentNum := pageNum + 1
		kids += fmt.Sprintf("%d 0 R ", pageNum)
		rotate := ""
		if p.Rotate != 0 {
			rotate = fmt.Sprintf(" /Rotate %d", p.Rotate)
		}
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R%s >>",
				p.Width, p.Height, contentNum, rotate),
			Stream("", []byte(p.Content)),
		)
	}
	objs[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages))
	return Build(objs...)
}

// TextPage is a single 612x792 page showing text at (x, y) in user space.
func TextPage(text string, size, x, y float64) []byte {
	content := fmt.Sprintf("BT /F1 %g Tf %g %g Td (%s) Tj ET", size, x, y, text)
	return Document(Page{Width: 612, Height: 792, Content: content})
}
