package config

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/multierr"

	"wte/misc"
)

type ReporterConfig struct {
	Destination string `yaml:"destination" sanitize:"path_clean,assure_dir_exists_for_file" validate:"required,filepath"`
}

// Prepare creates empty report. When destination cannot be created report
// goes to temporary directory.
func (conf *ReporterConfig) Prepare() (*Report, error) {
	f, err := os.Create(conf.Destination)
	if err != nil {
		if f, err = os.CreateTemp("", misc.GetAppName()+"-report.*.zip"); err != nil {
			return nil, fmt.Errorf("unable to create report: %w", err)
		}
	}
	return &Report{entries: make(map[string]entry), file: f}, nil
}

// entry is either a file on disk (logs, produced books), copied when report
// is closed, or data captured in memory (downloaded pages).
type entry struct {
	path  string
	abs   string
	stamp time.Time
	data  []byte
}

func (e entry) describe() string {
	if e.data != nil {
		return fmt.Sprintf("%d bytes", len(e.data))
	}
	return e.path + " : " + e.abs
}

// Report collects everything needed to troubleshoot a run into a single zip
// archive. Chapter workers store downloaded pages concurrently, so all
// methods are safe for concurrent use. Nil report ignores everything.
type Report struct {
	mu      sync.Mutex
	entries map[string]entry
	file    *os.File
}

// Close writes the report. Calling it more than once is allowed.
func (r *Report) Close() (err error) {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	defer func() {
		err = multierr.Append(err, r.file.Close())
		r.file = nil
	}()

	zw := zip.NewWriter(r.file)
	err = r.write(zw)
	return multierr.Append(err, zw.Close())
}

// Name returns absolute name of the report file, empty when there is none.
func (r *Report) Name() string {
	if r == nil || r.file == nil {
		return ""
	}
	if n, err := filepath.Abs(r.file.Name()); err == nil {
		return n
	}
	return r.file.Name()
}

// Store registers file to be copied into report under name when report is
// closed. Files missing at that time are only listed in the manifest.
func (r *Report) Store(name, path string) {
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, exists := r.entries[name]; exists && old.path != path {
		panic(fmt.Sprintf("report entry %q already refers to %s, refusing %s", name, old.path, path))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	r.entries[name] = entry{path: path, abs: abs}
}

// StoreData keeps copy of data to be put into report under name. The same
// page could be downloaded more than once (cover and chapter images sharing
// source), repeated names get timestamp suffix.
func (r *Report) StoreData(name string, data []byte) {
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e := entry{data: bytes.Clone(data), stamp: time.Now()}
	if e.data == nil {
		e.data = []byte{}
	}
	if _, exists := r.entries[name]; exists {
		name = fmt.Sprintf("%s-%d", name, e.stamp.UnixNano())
	}
	r.entries[name] = e
}

// write puts MANIFEST listing every entry first, then entries themselves in
// manifest order.
func (r *Report) write(zw *zip.Writer) error {
	now := time.Now()
	names := slices.Sorted(maps.Keys(r.entries))

	manifest := new(bytes.Buffer)
	for _, name := range names {
		e := r.entries[name]
		stamp := e.stamp
		if stamp.IsZero() {
			stamp = now
		}
		fmt.Fprintf(manifest, "%s\t%s\t%s\n", stamp.UTC().Format(time.UnixDate), name, e.describe())
	}
	if err := addToZip(zw, "MANIFEST", now, manifest); err != nil {
		return err
	}

	for _, name := range names {
		e := r.entries[name]
		if e.data != nil {
			if err := addToZip(zw, name, e.stamp, bytes.NewReader(e.data)); err != nil {
				return err
			}
			continue
		}
		if err := addFileToZip(zw, name, e.abs); err != nil {
			return err
		}
	}
	return nil
}

// addFileToZip skips absent files and anything which is not a regular file.
func addFileToZip(zw *zip.Writer, name, path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return addToZip(zw, name, info.ModTime(), f)
}

func addToZip(zw *zip.Writer, name string, t time.Time, src io.Reader) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: t})
	if err != nil {
		return fmt.Errorf("unable to add %s to report: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("unable to add %s to report: %w", name, err)
	}
	return nil
}
