package timeseries

import (
	"os"
	"path/filepath"

	"github.com/ctessum/cdf"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"go.ngs.io/ncresample/internal/domain"
)

// A classic netCDF header cannot grow in place once data follows it, so
// amendments rebuild the file next to the original and swap it in.

// SetAttributes sets or replaces global attributes of the dataset at path.
// Names not present are appended after the existing ones.
func (w *Writer) SetAttributes(path string, attrs []domain.Attribute) error {
	for _, a := range attrs {
		if a.Name == "" {
			return domain.Configf("attributes", "attribute with empty name")
		}
	}
	return w.rewrite(path, attrs, nil)
}

// AddVariable adds a (time, lat, lon) float variable to an existing dataset.
// Records already written hold fill values for it.
func (w *Writer) AddVariable(path string, v domain.VariableSpec, fill float32) error {
	if err := v.Validate(); err != nil {
		return err
	}
	h, err := w.m.acquire(path)
	if err != nil {
		return err
	}
	for _, name := range h.cf.Header.Variables() {
		if name == v.Name {
			return domain.Configf("variable", "%q already exists in %s", v.Name, path)
		}
	}
	return w.rewrite(path, nil, &newVariable{spec: v, fill: fill})
}

type newVariable struct {
	spec domain.VariableSpec
	fill float32
}

func (w *Writer) rewrite(path string, attrs []domain.Attribute, extra *newVariable) error {
	old, err := w.m.acquire(path)
	if err != nil {
		return err
	}
	nrec, err := old.numRecs()
	if err != nil {
		return &domain.IOError{Op: "amend", Path: path, Err: err}
	}

	hdr := rebuildHeader(old.cf.Header, attrs, extra)
	if errs := hdr.Check(); len(errs) > 0 {
		return &domain.IOError{Op: "amend", Path: path, Err: errs[0]}
	}

	tmp, err := os.CreateTemp(filepath.Dir(old.path), ".amend-*.nc")
	if err != nil {
		return &domain.IOError{Op: "amend", Path: path, Err: err}
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	cf, err := cdf.Create(tmp, hdr)
	if err != nil {
		cleanup()
		return &domain.IOError{Op: "amend", Path: path, Err: err}
	}
	if err := copyData(old.cf, cf, nrec); err != nil {
		cleanup()
		return &domain.IOError{Op: "amend", Path: path, Err: err}
	}
	if err := cdf.UpdateNumRecs(tmp); err != nil {
		cleanup()
		return &domain.IOError{Op: "amend", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return &domain.IOError{Op: "amend", Path: path, Err: err}
	}

	w.m.release(old.path)
	if err := old.file.Close(); err != nil {
		cleanup()
		return &domain.IOError{Op: "amend", Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), old.path); err != nil {
		cleanup()
		return &domain.IOError{Op: "amend", Path: path, Err: err}
	}
	h := &handle{path: old.path, file: tmp, cf: cf, rows: old.rows, cols: old.cols}
	if err := w.m.adopt(h); err != nil {
		return err
	}
	w.log.WithFields(logrus.Fields{"path": old.path, "records": nrec}).Debug("rewrote dataset header")
	return nil
}

// rebuildHeader copies the definitions of old into a new header, applying
// attribute updates and an optional new variable.
func rebuildHeader(old *cdf.Header, attrs []domain.Attribute, extra *newVariable) *cdf.Header {
	hdr := cdf.NewHeader(old.Dimensions(""), old.Lengths(""))
	for _, v := range old.Variables() {
		hdr.AddVariable(v, old.Dimensions(v), old.ZeroValue(v, 1))
		for _, a := range old.Attributes(v) {
			hdr.AddAttribute(v, a, old.GetAttribute(v, a))
		}
	}
	if extra != nil {
		addDataVariable(hdr, extra.spec, extra.fill)
	}

	updates := map[string]string{}
	for _, a := range attrs {
		updates[a.Name] = a.Value
	}
	for _, a := range old.Attributes("") {
		if val, ok := updates[a]; ok {
			if val != "" {
				hdr.AddAttribute("", a, val)
			}
			delete(updates, a)
			continue
		}
		hdr.AddAttribute("", a, old.GetAttribute("", a))
	}
	for _, a := range attrs {
		if _, pending := updates[a.Name]; pending && a.Value != "" {
			hdr.AddAttribute("", a.Name, a.Value)
			delete(updates, a.Name)
		}
	}
	hdr.Define()
	return hdr
}

// copyData moves every value of src into dst, record by record for record
// variables. Variables only in dst keep their fill values.
func copyData(src, dst *cdf.File, nrec int) error {
	sh := src.Header
	for _, v := range sh.Variables() {
		if sh.IsRecordVariable(v) {
			continue
		}
		n := product(sh.Lengths(v))
		if n == 0 {
			continue
		}
		buf := zero(sh, v, n)
		if err := readAll(src.Reader(v, nil, nil), buf, n); err != nil {
			return errors.Wrapf(err, "read %s", v)
		}
		if err := writeAll(dst.Writer(v, nil, nil), buf, n); err != nil {
			return errors.Wrapf(err, "write %s", v)
		}
	}

	for r := 0; r < nrec; r++ {
		if err := dst.FillRecord(r); err != nil {
			return errors.Wrapf(err, "fill record %d", r)
		}
		for _, v := range sh.Variables() {
			if !sh.IsRecordVariable(v) {
				continue
			}
			lengths := sh.Lengths(v)
			n := product(lengths[1:])
			if n == 0 {
				continue
			}
			begin := make([]int, len(lengths))
			end := make([]int, len(lengths))
			begin[0], end[0] = r, r
			for i := 1; i < len(lengths); i++ {
				end[i] = lengths[i] - 1
			}
			buf := zero(sh, v, n)
			if err := readAll(src.Reader(v, begin, end), buf, n); err != nil {
				return errors.Wrapf(err, "read %s record %d", v, r)
			}
			if err := writeAll(dst.Writer(v, begin, nil), buf, n); err != nil {
				return errors.Wrapf(err, "write %s record %d", v, r)
			}
		}
	}
	return nil
}

// zero returns a read buffer for n values of v. CHAR data is read as bytes.
func zero(h *cdf.Header, v string, n int) interface{} {
	if _, ok := h.ZeroValue(v, 0).(string); ok {
		return make([]byte, n)
	}
	return h.ZeroValue(v, n)
}

func product(lengths []int) int {
	if len(lengths) == 0 {
		return 1
	}
	n := 1
	for _, l := range lengths {
		n *= l
	}
	return n
}
