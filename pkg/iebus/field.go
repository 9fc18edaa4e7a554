package iebus

import "strconv"

// Field identifies a frame field.
type Field int

// Frame fields in wire order.
const (
	FieldMaster Field = iota
	FieldSlave
	FieldControl
	FieldLength
	FieldData
)

var fieldNames = [...]string{
	FieldMaster:  "master address",
	FieldSlave:   "slave address",
	FieldControl: "control",
	FieldLength:  "data length",
	FieldData:    "data byte",
}

var fieldWidths = [...]int{
	FieldMaster:  12,
	FieldSlave:   12,
	FieldControl: 4,
	FieldLength:  8,
	FieldData:    8,
}

// String implements fmt.Stringer.
func (f Field) String() string {
	if f >= 0 && int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return "field(" + strconv.Itoa(int(f)) + ")"
}

// Width returns the number of value bits of the field.
func (f Field) Width() int {
	if f >= 0 && int(f) < len(fieldWidths) {
		return fieldWidths[f]
	}
	return 0
}

func (f Field) describe(index int) string {
	if f == FieldData {
		return f.String() + " " + strconv.Itoa(index)
	}
	return f.String()
}
