package header

// View is a non-owning, read-only projection over a Header's buffer
// and field index.
// It borrows the owning Header's slices and must not outlive a mutation of
// that Header.
type View struct {
	h *Header
}

// ViewOf returns a read-only View over h.
func ViewOf(h *Header) View { return View{h: h} }

func (v View) Kind() Kind             { return v.h.kind }
func (v View) Raw() []byte            { return v.h.Raw() }
func (v View) Method() string         { return v.h.method }
func (v View) Target() string         { return v.h.target }
func (v View) StatusCode() int        { return v.h.status }
func (v View) Reason() string         { return v.h.reason }
func (v View) VersionMajor() int      { return v.h.major }
func (v View) VersionMinor() int      { return v.h.minor }
func (v View) ContentLength() uint64  { return v.h.contentLength }
func (v View) HasContentLength() bool { return v.h.hasContentLength }
func (v View) HasChunked() bool       { return v.h.hasChunked }
func (v View) Count() int             { return v.h.Count() }

func (v View) Find(name string) (FieldView, bool)    { return v.h.Find(name) }
func (v View) FindID(id FieldID) (FieldView, bool)    { return v.h.FindID(id) }
func (v View) FindAll(name string) []FieldView        { return v.h.FindAll(name) }
func (v View) CountName(name string) int              { return v.h.CountName(name) }
func (v View) Fields() []FieldView                    { return v.h.Fields() }
func (v View) CombineFieldValues(name string) string  { return v.h.CombineFieldValues(name) }

// Clone materializes an independent, owning Header copy from this view.
func (v View) Clone() *Header { return v.h.Clone() }
