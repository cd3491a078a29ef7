package pyc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
)

// ---------------------------------------------------------------------------
// Module container: serialized code-object graph plus dialect header
// ---------------------------------------------------------------------------

// ModuleMagic identifies a serialized module container.
var ModuleMagic = []byte{'R', 'P', 'Y', 'C'}

var (
	ErrInvalidMagic = errors.New("invalid module magic")
	ErrCorruptData  = errors.New("corrupt module data")
	ErrBadTag       = errors.New("unknown object tag")
)

// Object graph tags.
const (
	tagNone     = 'N'
	tagTrue     = 'T'
	tagFalse    = 'F'
	tagInt      = 'i'
	tagFloat    = 'f'
	tagString   = 's'
	tagBytes    = 'b'
	tagTuple    = '('
	tagCode     = 'c'
	tagEllipsis = '.'
)

// Module is a parsed container: the dialect it was compiled for and the
// top-level code object.
type Module struct {
	Version Version
	Code    *Code
}

// ReadModuleFile reads and parses a module container from disk.
func ReadModuleFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return ReadModule(data)
}

// ReadModule parses a module container from bytes.
func ReadModule(data []byte) (*Module, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: header too short", ErrCorruptData)
	}
	if string(data[0:4]) != string(ModuleMagic) {
		return nil, fmt.Errorf("%w: expected %q, got %q", ErrInvalidMagic, ModuleMagic, data[0:4])
	}
	m := &Module{
		Version: Version{
			Major: int(binary.BigEndian.Uint16(data[4:6])),
			Minor: int(binary.BigEndian.Uint16(data[6:8])),
		},
	}
	d := &moduleDecoder{data: data, pos: 8}
	obj, err := d.readObject()
	if err != nil {
		return nil, err
	}
	if obj.Kind != KindCode {
		return nil, fmt.Errorf("%w: top-level object is %s, want code", ErrCorruptData, obj.Kind)
	}
	m.Code = obj.Code
	return m, nil
}

type moduleDecoder struct {
	data []byte
	pos  int
}

func (d *moduleDecoder) need(n int) error {
	if d.pos+n > len(d.data) {
		return fmt.Errorf("%w: unexpected end at offset %d (need %d bytes)", ErrCorruptData, d.pos, n)
	}
	return nil
}

func (d *moduleDecoder) readByte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *moduleDecoder) readUint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *moduleDecoder) readUint64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(d.data[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *moduleDecoder) readString() (string, error) {
	n, err := d.readUint32()
	if err != nil {
		return "", err
	}
	if err := d.need(int(n)); err != nil {
		return "", err
	}
	s := string(d.data[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, nil
}

func (d *moduleDecoder) readStringList() ([]string, error) {
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = d.readString(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *moduleDecoder) readObject() (*Object, error) {
	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNone:
		return None, nil
	case tagEllipsis:
		return Ellipsis, nil
	case tagTrue:
		return NewBool(true), nil
	case tagFalse:
		return NewBool(false), nil
	case tagInt:
		v, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		return NewInt(int64(v)), nil
	case tagFloat:
		bits, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		return NewFloat(math.Float64frombits(bits)), nil
	case tagString:
		s, err := d.readString()
		if err != nil {
			return nil, err
		}
		return NewString(s), nil
	case tagBytes:
		s, err := d.readString()
		if err != nil {
			return nil, err
		}
		return NewBytes([]byte(s)), nil
	case tagTuple:
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		elems := make([]*Object, n)
		for i := range elems {
			if elems[i], err = d.readObject(); err != nil {
				return nil, err
			}
		}
		return NewTuple(elems...), nil
	case tagCode:
		c, err := d.readCode()
		if err != nil {
			return nil, err
		}
		return NewCodeObject(c), nil
	default:
		return nil, fmt.Errorf("%w: 0x%02X at offset %d", ErrBadTag, tag, d.pos-1)
	}
}

func (d *moduleDecoder) readCode() (*Code, error) {
	c := &Code{}
	var err error
	if c.Name, err = d.readString(); err != nil {
		return nil, err
	}
	argCount, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	c.ArgCount = int(argCount)
	stackSize, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	c.StackSize = int(stackSize)
	flags, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	c.Flags = CodeFlags(flags)

	codeLen, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	if err := d.need(int(codeLen)); err != nil {
		return nil, err
	}
	c.Bytecode = make([]byte, codeLen)
	copy(c.Bytecode, d.data[d.pos:d.pos+int(codeLen)])
	d.pos += int(codeLen)

	constCount, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	c.Consts = make([]*Object, constCount)
	for i := range c.Consts {
		if c.Consts[i], err = d.readObject(); err != nil {
			return nil, err
		}
	}
	if c.Names, err = d.readStringList(); err != nil {
		return nil, err
	}
	if c.VarNames, err = d.readStringList(); err != nil {
		return nil, err
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Writer side, used by fixtures and the bundling tool
// ---------------------------------------------------------------------------

// WriteModule serializes a module container to bytes.
func WriteModule(m *Module) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, ModuleMagic...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.Version.Major))
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.Version.Minor))
	return appendObject(buf, NewCodeObject(m.Code))
}

// SerializeCode serializes one code object, including its constant pool,
// name tables, and nested code objects. Two code objects serialize
// identically only when all of their content matches, which makes the
// result suitable as a content-hash input.
func SerializeCode(c *Code) []byte {
	return appendObject(make([]byte, 0, 256), NewCodeObject(c))
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendStringList(buf []byte, list []string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(list)))
	for _, s := range list {
		buf = appendString(buf, s)
	}
	return buf
}

func appendObject(buf []byte, o *Object) []byte {
	switch o.Kind {
	case KindNone:
		return append(buf, tagNone)
	case KindEllipsis:
		return append(buf, tagEllipsis)
	case KindBool:
		if o.Bool {
			return append(buf, tagTrue)
		}
		return append(buf, tagFalse)
	case KindInt:
		buf = append(buf, tagInt)
		return binary.BigEndian.AppendUint64(buf, uint64(o.Int))
	case KindFloat:
		buf = append(buf, tagFloat)
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(o.Float))
	case KindString:
		buf = append(buf, tagString)
		return appendString(buf, o.Str)
	case KindBytes:
		buf = append(buf, tagBytes)
		return appendString(buf, o.Str)
	case KindTuple:
		buf = append(buf, tagTuple)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(o.Tuple)))
		for _, e := range o.Tuple {
			buf = appendObject(buf, e)
		}
		return buf
	case KindCode:
		buf = append(buf, tagCode)
		c := o.Code
		buf = appendString(buf, c.Name)
		buf = binary.BigEndian.AppendUint32(buf, uint32(c.ArgCount))
		buf = binary.BigEndian.AppendUint32(buf, uint32(c.StackSize))
		buf = binary.BigEndian.AppendUint32(buf, uint32(c.Flags))
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.Bytecode)))
		buf = append(buf, c.Bytecode...)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.Consts)))
		for _, e := range c.Consts {
			buf = appendObject(buf, e)
		}
		buf = appendStringList(buf, c.Names)
		return appendStringList(buf, c.VarNames)
	default:
		panic(fmt.Sprintf("pyc: cannot serialize %s", o.Kind))
	}
}
