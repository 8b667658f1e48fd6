package palm

import (
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/encoding"
	"gopkg.in/yaml.v3"
)

// Dump writes f as an ordered YAML document. Strings are decoded with enc;
// nil means windows-1252.
func Dump(w io.Writer, f *File, enc encoding.Encoding) error {
	if enc == nil {
		var err error
		if enc, err = Charset(DefaultCharset); err != nil {
			return err
		}
	}
	d := dumper{enc: enc}

	root := mapping()
	appendPair(root, "kind", scalar("!!str", f.Kind.String()))
	header, err := d.record(f.Header)
	if err != nil {
		return err
	}
	appendPair(root, "header", header)

	ye := yaml.NewEncoder(w)
	ye.SetIndent(2)
	if err := ye.Encode(root); err != nil {
		return fmt.Errorf("palm: dump: %w", err)
	}
	return ye.Close()
}

type dumper struct {
	enc encoding.Encoding
}

func (d dumper) value(v Value) (*yaml.Node, error) {
	switch tv := v.(type) {
	case Uint:
		return scalar("!!int", strconv.FormatUint(uint64(tv), 10)), nil
	case Float:
		return scalar("!!float", strconv.FormatFloat(float64(tv), 'g', -1, 32)), nil
	case Bool:
		return scalar("!!bool", strconv.FormatBool(bool(tv))), nil
	case Text:
		s, err := DecodeText(d.enc, tv)
		if err != nil {
			return nil, err
		}
		return scalar("!!str", s), nil
	case Null:
		return scalar("!!null", "null"), nil
	case *RepeatSpec:
		return d.repeat(tv)
	case Record:
		return d.record(tv)
	case Records:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, r := range tv {
			n, err := d.record(r)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, n)
		}
		return seq, nil
	default:
		return nil, fmt.Errorf("palm: dump: %w: %s", ErrValueType, kindOf(v))
	}
}

func (d dumper) record(r Record) (*yaml.Node, error) {
	m := mapping()
	for _, f := range r.fields {
		n, err := d.value(f.Value)
		if err != nil {
			return nil, err
		}
		appendPair(m, f.Name, n)
	}
	return m, nil
}

func (d dumper) repeat(s *RepeatSpec) (*yaml.Node, error) {
	m := mapping()
	if len(s.Exceptions) > 0 {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
		for _, ex := range s.Exceptions {
			seq.Content = append(seq.Content, uintNode(ex))
		}
		appendPair(m, "exceptions", seq)
	}
	appendPair(m, "flag", uintNode(uint32(s.Flag)))
	if !s.Repeats() {
		return m, nil
	}
	if s.Class != nil {
		name, err := DecodeText(d.enc, s.Class.Name)
		if err != nil {
			return nil, err
		}
		c := mapping()
		appendPair(c, "constant", uintNode(uint32(s.Class.Constant)))
		appendPair(c, "name", scalar("!!str", name))
		appendPair(m, "class", c)
	}
	appendPair(m, "brand", scalar("!!str", s.Brand.String()))
	appendPair(m, "interval", uintNode(s.Interval))
	appendPair(m, "endDate", uintNode(s.EndDate))
	appendPair(m, "firstDayOfWeek", uintNode(s.FirstDayOfWeek))
	opt := []struct {
		name string
		v    *uint32
	}{
		{"dayIndex", s.DayIndex},
		{"weekIndex", s.WeekIndex},
		{"dayNumber", s.DayNumber},
		{"monthIndex", s.MonthIndex},
	}
	for _, o := range opt {
		if o.v != nil {
			appendPair(m, o.name, uintNode(*o.v))
		}
	}
	if s.DaysMask != nil {
		appendPair(m, "daysMask", scalar("!!str", fmt.Sprintf("0b%07b", *s.DaysMask)))
	}
	return m, nil
}

func mapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func scalar(tag, v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v}
}

func uintNode(v uint32) *yaml.Node {
	return scalar("!!int", strconv.FormatUint(uint64(v), 10))
}

func appendPair(m *yaml.Node, key string, v *yaml.Node) {
	m.Content = append(m.Content, scalar("!!str", key), v)
}
