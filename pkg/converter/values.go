// pkg/converter/values.go
package converter

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/David-Botos/churn-pipeline/pkg/model"
)

// ConvertDriverValue converts a value scanned from a database driver into a
// typed value of the given kind
func (c *TypeConverter) ConvertDriverValue(value interface{}, kind model.Kind) model.Value {
	if isNull(value) {
		return model.Missing(kind)
	}

	switch kind {
	case model.KindInt:
		i, err := ToInt(value)
		if err != nil {
			return model.Missing(kind)
		}
		return model.Int(i)
	case model.KindFloat:
		f, err := ToFloat(value)
		if err != nil {
			return model.Missing(kind)
		}
		return model.Float(f)
	case model.KindBool:
		b, err := ToBool(value)
		if err != nil {
			return model.Missing(kind)
		}
		return model.Bool(b)
	default:
		s := ToString(value)
		if c.IsNullString(s) {
			return model.Missing(kind)
		}
		return model.Text(strings.TrimSpace(s))
	}
}

// isNull determines if a value should be treated as NULL
func isNull(value interface{}) bool {
	if value == nil {
		return true
	}

	// Check string representations of NULL
	if strVal, ok := value.(string); ok {
		nullValues := []string{"null", "NULL", "nil", "NIL"}
		for _, null := range nullValues {
			if strVal == null {
				return true
			}
		}
	}

	return false
}

// ToString converts an interface to string
func ToString(v interface{}) string {
	if v == nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ToInt attempts to convert a value to int64
func ToInt(v interface{}) (int64, error) {
	if v == nil {
		return 0, errors.New("nil value")
	}

	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		if val > uint64(math.MaxInt64) {
			return 0, errors.New("uint64 value overflow for int64")
		}
		return int64(val), nil
	case float32:
		return int64(val), nil
	case float64:
		return int64(val), nil
	case string:
		return parseInt(strings.TrimSpace(val))
	case []byte:
		return parseInt(strings.TrimSpace(string(val)))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}

// ToFloat attempts to convert a value to float64
func ToFloat(v interface{}) (float64, error) {
	if v == nil {
		return 0, errors.New("nil value")
	}

	switch val := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return strconv.ParseFloat(ToString(val), 64)
	case float32:
		return float64(val), nil
	case float64:
		return val, nil
	case string:
		return parseFloat(strings.TrimSpace(val))
	case []byte:
		return parseFloat(strings.TrimSpace(string(val)))
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

// ToBool attempts to convert a value to bool
func ToBool(v interface{}) (bool, error) {
	if v == nil {
		return false, errors.New("nil value")
	}

	switch val := v.(type) {
	case bool:
		return val, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		i, _ := ToInt(val)
		return i != 0, nil
	case string:
		return parseBoolLiteral(strings.TrimSpace(val))
	case []byte:
		return parseBoolLiteral(strings.TrimSpace(string(val)))
	default:
		return false, fmt.Errorf("cannot convert %T to bool", v)
	}
}

func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty string")
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("empty string")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("cannot convert string '%s' to numeric", s)
	}
	return f, nil
}

// parseBoolLiteral only accepts true/false spellings. Yes/No stays
// categorical text so the feature encoder owns its mapping.
func parseBoolLiteral(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "t":
		return true, nil
	case "false", "f":
		return false, nil
	default:
		return false, fmt.Errorf("cannot parse '%s' as boolean", s)
	}
}
