package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/beevik/etree"
	"go.uber.org/multierr"
)

const mimetypeContent = "application/epub+zip"

// Item is manifest entry of the book.
type Item struct {
	ID        string
	Href      string
	MediaType string
}

// NavPoint is table of contents entry of the book.
type NavPoint struct {
	PlayOrder int
	Label     string
	Src       string
}

// Book is structure of EPUB container as read back from disk. All hrefs are
// relative to package document directory.
type Book struct {
	Entries    []string
	OPFPath    string
	Identifier string
	Title      string
	Cover      string
	Manifest   []Item
	Spine      []string
	Nav        []NavPoint
}

// Item looks up manifest entry by id.
func (b *Book) Item(id string) (Item, bool) {
	for _, it := range b.Manifest {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Inspect reads EPUB container and checks invariants readers depend on:
// mimetype is first and stored, manifest ids are unique and every manifest
// item is present, spine and navigation only reference existing content and
// navigation play order is increasing. All violations are reported together.
func Inspect(name string) (*Book, error) {
	r, err := zip.OpenReader(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	book := &Book{}
	files := make(map[string]*zip.File)
	err = Walk(&r.Reader, "", func(f *zip.File) error {
		book.Entries = append(book.Entries, f.Name)
		files[f.Name] = f
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(r.File) == 0 || r.File[0].Name != "mimetype" {
		return nil, errors.New("mimetype is not the first entry")
	}
	if r.File[0].Method != zip.Store {
		return nil, errors.New("mimetype is compressed")
	}
	if data, err := readFile(r.File[0]); err != nil || string(data) != mimetypeContent {
		return nil, fmt.Errorf("bad mimetype content %q", data)
	}

	container, err := readXML(files, "META-INF/container.xml")
	if err != nil {
		return nil, err
	}
	rootfile := container.FindElement("//rootfiles/rootfile")
	if rootfile == nil {
		return nil, errors.New("container has no rootfile")
	}
	book.OPFPath = rootfile.SelectAttrValue("full-path", "")

	opf, err := readXML(files, book.OPFPath)
	if err != nil {
		return nil, err
	}
	base := path.Dir(book.OPFPath)

	var errs error
	if el := opf.FindElement("//metadata/dc:identifier"); el != nil {
		book.Identifier = el.Text()
	}
	if el := opf.FindElement("//metadata/dc:title"); el != nil {
		book.Title = el.Text()
	}
	if el := opf.FindElement("//metadata/meta[@name='cover']"); el != nil {
		book.Cover = el.SelectAttrValue("content", "")
	}

	ids := make(map[string]Item)
	for _, el := range opf.FindElements("//manifest/item") {
		it := Item{
			ID:        el.SelectAttrValue("id", ""),
			Href:      el.SelectAttrValue("href", ""),
			MediaType: el.SelectAttrValue("media-type", ""),
		}
		if _, dup := ids[it.ID]; dup {
			errs = multierr.Append(errs, fmt.Errorf("duplicate manifest id %q", it.ID))
		}
		ids[it.ID] = it
		if _, ok := files[path.Join(base, it.Href)]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("manifest item %q references missing %q", it.ID, it.Href))
		}
		book.Manifest = append(book.Manifest, it)
	}
	if book.Cover != "" {
		if _, ok := ids[book.Cover]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("cover references unknown item %q", book.Cover))
		}
	}

	spine := opf.FindElement("//spine")
	if spine == nil {
		return nil, multierr.Append(errs, errors.New("package has no spine"))
	}
	for _, el := range spine.SelectElements("itemref") {
		idref := el.SelectAttrValue("idref", "")
		if _, ok := ids[idref]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("spine references unknown item %q", idref))
		}
		book.Spine = append(book.Spine, idref)
	}

	toc, ok := ids[spine.SelectAttrValue("toc", "")]
	if !ok {
		return nil, multierr.Append(errs, errors.New("spine has no table of contents"))
	}
	ncx, err := readXML(files, path.Join(base, toc.Href))
	if err != nil {
		return nil, multierr.Append(errs, err)
	}
	last := 0
	for _, el := range ncx.FindElements("//navMap/navPoint") {
		np := NavPoint{}
		if np.PlayOrder, err = strconv.Atoi(el.SelectAttrValue("playOrder", "")); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("bad play order: %w", err))
		}
		if np.PlayOrder <= last {
			errs = multierr.Append(errs, fmt.Errorf("play order %d does not increase", np.PlayOrder))
		}
		last = np.PlayOrder
		if label := el.FindElement("navLabel/text"); label != nil {
			np.Label = label.Text()
		}
		if content := el.FindElement("content"); content != nil {
			np.Src = content.SelectAttrValue("src", "")
		}
		if _, ok := files[path.Join(base, np.Src)]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("navigation references missing %q", np.Src))
		}
		book.Nav = append(book.Nav, np)
	}

	if errs != nil {
		return nil, errs
	}
	return book, nil
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func readXML(files map[string]*zip.File, name string) (*etree.Document, error) {
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("archive has no %q", name)
	}
	data, err := readFile(f)
	if err != nil {
		return nil, fmt.Errorf("unable to read %q: %w", name, err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("unable to parse %q: %w", name, err)
	}
	return doc, nil
}
