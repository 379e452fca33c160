package formatting

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// encodingFormatter renders through a marshal function; used for JSON and YAML.
type encodingFormatter struct {
	options Options
	marshal func(interface{}) ([]byte, error)
}

func marshalJSON(v interface{}) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func marshalYAML(v interface{}) ([]byte, error) {
	return yaml.Marshal(v)
}

func (f *encodingFormatter) FormatReport(w io.Writer, report Report) error {
	return f.FormatData(w, report)
}

func (f *encodingFormatter) FormatData(w io.Writer, data interface{}) error {
	b, err := f.marshal(data)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = w.Write(b)
	return err
}

func (f *encodingFormatter) SetOptions(options Options) {
	f.options = options
}

func (f *encodingFormatter) GetOptions() Options {
	return f.options
}
