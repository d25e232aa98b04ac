package serializer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jmendel/idb/lib/fixture"
	"github.com/jmendel/idb/lib/keypath"
)

// NewBinarySerializer creates a new serializer using a compact custom
// binary format. The format carries a magic number and a format version
// so that incompatible files are rejected up front.
func NewBinarySerializer() IFixtureSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements the IFixtureSerializer interface using
// a hand-rolled length-prefixed encoding
type binarySerializerImpl struct {
}

var binaryMagic = []byte("IDBFIX\x00")

const binaryFormatVersion byte = 1

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IFixtureSerializer)
// --------------------------------------------------------------------------

func (s binarySerializerImpl) Serialize(fx fixture.Fixture) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(binaryMagic)
	buf.WriteByte(binaryFormatVersion)

	w := &binWriter{buf: &buf}
	w.uvarint(uint64(len(fx.Databases)))
	for _, dbf := range fx.Databases {
		w.string(dbf.Name)
		w.uvarint(dbf.Version)
		w.uvarint(uint64(len(dbf.Stores)))
		for _, sf := range dbf.Stores {
			w.string(sf.Name)
			w.string(sf.KeyPath)
			w.bool(sf.AutoIncrement)
			w.uvarint(uint64(len(sf.Indices)))
			for _, ixf := range sf.Indices {
				w.string(ixf.Name)
				w.string(ixf.KeyPath)
				w.bool(ixf.Unique)
				w.bool(ixf.MultiEntry)
			}
			w.uvarint(uint64(len(sf.Records)))
			for _, rf := range sf.Records {
				w.bool(rf.Key != nil)
				if rf.Key != nil {
					w.key(*rf.Key)
				}
				w.value(rf.Value)
			}
		}
	}
	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

func (s binarySerializerImpl) Deserialize(b []byte, fx *fixture.Fixture) error {
	if len(b) < len(binaryMagic)+1 || !bytes.Equal(b[:len(binaryMagic)], binaryMagic) {
		return fmt.Errorf("not a binary fixture file (bad magic)")
	}
	if v := b[len(binaryMagic)]; v != binaryFormatVersion {
		return fmt.Errorf("unsupported fixture format version %d", v)
	}
	r := &binReader{buf: bytes.NewReader(b[len(binaryMagic)+1:])}

	var out fixture.Fixture
	nDBs := r.uvarint()
	for i := uint64(0); i < nDBs && r.err == nil; i++ {
		dbf := fixture.DatabaseFixture{
			Name:    r.string(),
			Version: r.uvarint(),
		}
		nStores := r.uvarint()
		for j := uint64(0); j < nStores && r.err == nil; j++ {
			sf := fixture.StoreFixture{
				Name:          r.string(),
				KeyPath:       r.string(),
				AutoIncrement: r.bool(),
			}
			nIdx := r.uvarint()
			for k := uint64(0); k < nIdx && r.err == nil; k++ {
				sf.Indices = append(sf.Indices, fixture.IndexFixture{
					Name:       r.string(),
					KeyPath:    r.string(),
					Unique:     r.bool(),
					MultiEntry: r.bool(),
				})
			}
			nRec := r.uvarint()
			for k := uint64(0); k < nRec && r.err == nil; k++ {
				var rf fixture.RecordFixture
				if r.bool() {
					key := r.key()
					rf.Key = &key
				}
				rf.Value = r.value()
				sf.Records = append(sf.Records, rf)
			}
			dbf.Stores = append(dbf.Stores, sf)
		}
		out.Databases = append(out.Databases, dbf)
	}
	if r.err != nil {
		return r.err
	}
	*fx = out
	return nil
}

// --------------------------------------------------------------------------
// Encoding Helpers
// --------------------------------------------------------------------------

type binWriter struct {
	buf *bytes.Buffer
	err error
}

func (w *binWriter) uvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf.Write(tmp[:n])
}

func (w *binWriter) string(s string) {
	w.uvarint(uint64(len(s)))
	w.buf.WriteString(s)
}

func (w *binWriter) bytes(b []byte) {
	w.uvarint(uint64(len(b)))
	w.buf.Write(b)
}

func (w *binWriter) bool(b bool) {
	if b {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *binWriter) float64(f float64) {
	if err := binary.Write(w.buf, binary.LittleEndian, f); err != nil && w.err == nil {
		w.err = err
	}
}

func (w *binWriter) time(t time.Time) {
	if err := binary.Write(w.buf, binary.LittleEndian, t.UnixNano()); err != nil && w.err == nil {
		w.err = err
	}
}

func (w *binWriter) key(k keypath.Key) {
	w.buf.WriteByte(byte(k.Kind))
	switch k.Kind {
	case keypath.KeyNumber:
		w.float64(k.Num)
	case keypath.KeyTime:
		w.time(k.Time)
	case keypath.KeyString:
		w.string(k.Str)
	case keypath.KeyBinary:
		w.bytes(k.Bin)
	}
}

func (w *binWriter) value(v keypath.Value) {
	w.buf.WriteByte(byte(v.Kind))
	switch v.Kind {
	case keypath.KindNull:
	case keypath.KindBool:
		w.bool(v.Bool)
	case keypath.KindNumber:
		w.float64(v.Num)
	case keypath.KindTime:
		w.time(v.Time)
	case keypath.KindString:
		w.string(v.Str)
	case keypath.KindBinary:
		w.bytes(v.Bin)
	case keypath.KindArray:
		w.uvarint(uint64(len(v.Arr)))
		for _, el := range v.Arr {
			w.value(el)
		}
	case keypath.KindObject:
		names := make([]string, 0, len(v.Obj))
		for name := range v.Obj {
			names = append(names, name)
		}
		sort.Strings(names)
		w.uvarint(uint64(len(names)))
		for _, name := range names {
			w.string(name)
			w.value(v.Obj[name])
		}
	default:
		if w.err == nil {
			w.err = fmt.Errorf("cannot encode value kind %d", v.Kind)
		}
	}
}

type binReader struct {
	buf *bytes.Reader
	err error
}

func (r *binReader) fail(err error) {
	if r.err == nil && err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		r.err = err
	}
}

func (r *binReader) uvarint() uint64 {
	v, err := binary.ReadUvarint(r.buf)
	r.fail(err)
	return v
}

func (r *binReader) string() string {
	return string(r.bytes())
}

func (r *binReader) bytes() []byte {
	n := r.uvarint()
	if r.err != nil {
		return nil
	}
	if n > uint64(r.buf.Len()) {
		r.fail(io.ErrUnexpectedEOF)
		return nil
	}
	b := make([]byte, n)
	_, err := io.ReadFull(r.buf, b)
	r.fail(err)
	return b
}

func (r *binReader) bool() bool {
	b, err := r.buf.ReadByte()
	r.fail(err)
	return b != 0
}

func (r *binReader) float64() float64 {
	var f float64
	r.fail(binary.Read(r.buf, binary.LittleEndian, &f))
	return f
}

func (r *binReader) time() time.Time {
	var ns int64
	r.fail(binary.Read(r.buf, binary.LittleEndian, &ns))
	return time.Unix(0, ns).UTC()
}

func (r *binReader) key() keypath.Key {
	kind, err := r.buf.ReadByte()
	r.fail(err)
	if r.err != nil {
		return keypath.Key{}
	}
	switch keypath.KeyKind(kind) {
	case keypath.KeyNumber:
		return keypath.NumberKey(r.float64())
	case keypath.KeyTime:
		return keypath.TimeKey(r.time())
	case keypath.KeyString:
		return keypath.StringKey(r.string())
	case keypath.KeyBinary:
		return keypath.BinaryKey(r.bytes())
	default:
		r.fail(fmt.Errorf("cannot decode key kind %d", kind))
		return keypath.Key{}
	}
}

func (r *binReader) value() keypath.Value {
	kind, err := r.buf.ReadByte()
	r.fail(err)
	if r.err != nil {
		return keypath.Value{}
	}
	switch keypath.Kind(kind) {
	case keypath.KindNull:
		return keypath.Null()
	case keypath.KindBool:
		return keypath.Boolean(r.bool())
	case keypath.KindNumber:
		return keypath.Number(r.float64())
	case keypath.KindTime:
		return keypath.Timestamp(r.time())
	case keypath.KindString:
		return keypath.String(r.string())
	case keypath.KindBinary:
		return keypath.Binary(r.bytes())
	case keypath.KindArray:
		n := r.uvarint()
		els := make([]keypath.Value, 0, min(n, 1024))
		for i := uint64(0); i < n && r.err == nil; i++ {
			els = append(els, r.value())
		}
		return keypath.Array(els...)
	case keypath.KindObject:
		n := r.uvarint()
		fields := make(map[string]keypath.Value, min(n, 1024))
		for i := uint64(0); i < n && r.err == nil; i++ {
			name := r.string()
			fields[name] = r.value()
		}
		return keypath.Object(fields)
	default:
		r.fail(fmt.Errorf("cannot decode value kind %d", kind))
		return keypath.Value{}
	}
}
