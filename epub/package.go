package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/beevik/etree"
	fixzip "github.com/hidez8891/zip"

	"wte/config"
	"wte/transform"
)

func (w *Writer) packageDocument(manifest []ManifestEntry) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	pkg := doc.CreateElement("package")
	pkg.CreateAttr("xmlns", "http://www.idpf.org/2007/opf")
	pkg.CreateAttr("unique-identifier", "BookId")
	pkg.CreateAttr("version", "2.0")

	metadata := pkg.CreateElement("metadata")
	metadata.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	metadata.CreateAttr("xmlns:opf", "http://www.idpf.org/2007/opf")

	metadata.CreateElement("dc:title").SetText(w.meta.Title)

	if author := strings.TrimSpace(w.meta.Author); author != "" {
		dcCreator := metadata.CreateElement("dc:creator")
		dcCreator.CreateAttr("opf:role", "aut")
		dcCreator.CreateAttr("opf:file-as", author)
		dcCreator.SetText(author)
	}

	metadata.CreateElement("dc:language").SetText(w.cfg.Language)

	dcIdentifier := metadata.CreateElement("dc:identifier")
	dcIdentifier.CreateAttr("id", "BookId")
	dcIdentifier.CreateAttr("opf:scheme", "UUID")
	dcIdentifier.SetText(w.Identifier())

	if w.meta.SourceURI != "" {
		metadata.CreateElement("dc:source").SetText(w.meta.SourceURI)
	}

	if w.cover {
		meta := metadata.CreateElement("meta")
		meta.CreateAttr("name", "cover")
		meta.CreateAttr("content", coverImageID)
	}

	items := pkg.CreateElement("manifest")
	for _, e := range manifest {
		item := items.CreateElement("item")
		item.CreateAttr("id", e.ID)
		item.CreateAttr("href", e.Href)
		item.CreateAttr("media-type", e.MediaType)
	}

	spine := pkg.CreateElement("spine")
	spine.CreateAttr("toc", "ncx")
	for _, e := range manifest {
		if e.InSpine {
			spine.CreateElement("itemref").CreateAttr("idref", e.ID)
		}
	}

	if w.cover {
		ref := pkg.CreateElement("guide").CreateElement("reference")
		ref.CreateAttr("type", "cover")
		ref.CreateAttr("title", "Cover")
		ref.CreateAttr("href", coverPageHref)
	}
	return doc
}

func (w *Writer) navigationDocument(nav []NavEntry) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	ncx := doc.CreateElement("ncx")
	ncx.CreateAttr("xmlns", "http://www.daisy.org/z3986/2005/ncx/")
	ncx.CreateAttr("version", "2005-1")

	head := ncx.CreateElement("head")
	for _, m := range [][2]string{
		{"dtb:uid", w.Identifier()},
		// chapters are never nested
		{"dtb:depth", "1"},
		{"dtb:totalPageCount", "0"},
		{"dtb:maxPageNumber", "0"},
	} {
		meta := head.CreateElement("meta")
		meta.CreateAttr("name", m[0])
		meta.CreateAttr("content", m[1])
	}

	ncx.CreateElement("docTitle").CreateElement("text").SetText(w.meta.Title)

	navMap := ncx.CreateElement("navMap")
	for _, e := range nav {
		navPoint := navMap.CreateElement("navPoint")
		navPoint.CreateAttr("id", fmt.Sprintf("body%04d", e.PlayOrder-1))
		navPoint.CreateAttr("playOrder", fmt.Sprintf("%d", e.PlayOrder))

		navPoint.CreateElement("navLabel").CreateElement("text").SetText(e.Label)
		navPoint.CreateElement("content").CreateAttr("src", e.Href)
	}
	return doc
}

// coverPage wraps cover image into SVG so it fills the screen on readers
// which support it.
func coverPage(title, href string, c *transform.Cover, cfg *config.CoverConfig) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	html := doc.CreateElement("html")
	html.CreateAttr("xmlns", "http://www.w3.org/1999/xhtml")

	head := html.CreateElement("head")

	meta := head.CreateElement("meta")
	meta.CreateAttr("http-equiv", "Content-Type")
	meta.CreateAttr("content", "text/html; charset=utf-8")

	style := head.CreateElement("style")
	style.CreateAttr("type", "text/css")

	switch cfg.Resize {
	case config.CoverResizeStretch:
		style.SetText("html, body { margin: 0; padding: 0; width: 100%; height: 100%; } svg { display: block; width: 100%; height: 100%; }")
	default:
		style.SetText("html, body { margin: 0; padding: 0; width: 100%; height: 100%; } svg { display: block; width: auto; height: 100%; margin: 0 auto }")
	}

	head.CreateElement("title").SetText(title)

	body := html.CreateElement("body")

	svg := body.CreateElement("svg")
	svg.CreateAttr("version", "1.1")
	svg.CreateAttr("xmlns", "http://www.w3.org/2000/svg")
	svg.CreateAttr("xmlns:xlink", "http://www.w3.org/1999/xlink")

	w, h := c.Width, c.Height
	if w == 0 || h == 0 {
		w, h = cfg.Width, cfg.Height
	}
	svgImage := svg.CreateElement("image")
	svgImage.CreateAttr("x", "0")
	svgImage.CreateAttr("y", "0")

	switch cfg.Resize {
	case config.CoverResizeStretch:
		svg.CreateAttr("viewBox", "0 0 100 100")
		svg.CreateAttr("preserveAspectRatio", "none")
		svgImage.CreateAttr("width", "100")
		svgImage.CreateAttr("height", "100")
	default:
		svg.CreateAttr("viewBox", fmt.Sprintf("0 0 %d %d", w, h))
		svg.CreateAttr("preserveAspectRatio", "xMidYMid meet")
		svgImage.CreateAttr("width", fmt.Sprintf("%d", w))
		svgImage.CreateAttr("height", fmt.Sprintf("%d", h))
	}
	svgImage.CreateAttr("xlink:href", href)

	return doc
}

func writeMimetype(zw *zip.Writer) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, mimetypeContent)
	return err
}

func writeContainer(zw *zip.Writer) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	container := doc.CreateElement("container")
	container.CreateAttr("version", "1.0")
	container.CreateAttr("xmlns", "urn:oasis:names:tc:opendocument:xmlns:container")

	rootfiles := container.CreateElement("rootfiles")
	rootfile := rootfiles.CreateElement("rootfile")
	rootfile.CreateAttr("full-path", path.Join(oebpsDir, opfName))
	rootfile.CreateAttr("media-type", "application/oebps-package+xml")

	return writeXMLToZip(zw, "META-INF/container.xml", doc)
}

func xmlBytes(doc *etree.Document) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeXMLToZip(zw *zip.Writer, name string, doc *etree.Document) error {
	data, err := xmlBytes(doc)
	if err != nil {
		return err
	}
	return writeDataToZip(zw, name, data)
}

func writeDataToZip(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// copyZipWithoutDataDescriptors rewrites archive so local headers carry
// sizes and checksums, some readers do not understand data descriptors.
func copyZipWithoutDataDescriptors(from, to string) (err error) {
	out, err := os.Create(to)
	if err != nil {
		return fmt.Errorf("unable to create target file (%s): %w", to, err)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(to)
		}
	}()

	r, err := fixzip.OpenReader(from)
	if err != nil {
		return fmt.Errorf("unable to read archive file (%s): %w", from, err)
	}
	defer r.Close()

	w := fixzip.NewWriter(out)
	for _, file := range r.File {
		// unset data descriptor flag.
		file.Flags &= ^fixzip.FlagDataDescriptor

		// copy zip entry
		if err := w.CopyFile(file); err != nil {
			return fmt.Errorf("unable to write target file (%s): %w", to, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("unable to finalize target file (%s): %w", to, err)
	}
	return out.Close()
}

func copyFile(src, dst string) (err error) {
	sourceFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer sourceFile.Close()

	destinationFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		destinationFile.Close()
		if err != nil {
			os.Remove(dst)
		}
	}()

	if _, err = io.Copy(destinationFile, sourceFile); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}

	if err = destinationFile.Close(); err != nil {
		return fmt.Errorf("failed to close destination file: %w", err)
	}
	return nil
}
