// pkg/converter/mapping.go
package converter

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/model"
)

// Patterns for type extraction
var (
	precisionScalePattern = regexp.MustCompile(`(?:NUMBER|NUMERIC|DECIMAL)\((\d+)(?:,\s*(\d+))?\)`)
)

// getBaseType extracts the base type from a complex type definition
func getBaseType(fullType string) string {
	parts := strings.Split(fullType, "(")
	return strings.TrimSpace(parts[0])
}

// KindForDatabaseType maps a driver column type (Postgres or Snowflake) to a
// field kind. scale is the decimal scale reported by the driver, or -1 when
// unknown.
func (c *TypeConverter) KindForDatabaseType(dbType string, scale int64) model.Kind {
	dbType = strings.ToUpper(strings.TrimSpace(dbType))
	if dbType == "" {
		return model.KindText
	}

	switch getBaseType(dbType) {
	case "INT", "INT2", "INT4", "INT8", "INTEGER", "SMALLINT", "BIGINT", "SERIAL", "BIGSERIAL":
		return model.KindInt
	case "FLOAT", "FLOAT4", "FLOAT8", "REAL", "DOUBLE", "DOUBLE PRECISION":
		return model.KindFloat
	case "NUMBER", "NUMERIC", "DECIMAL", "FIXED":
		return c.handleNumberType(dbType, scale)
	case "BOOL", "BOOLEAN":
		return model.KindBool
	case "TEXT", "VARCHAR", "CHAR", "BPCHAR", "STRING", "CHARACTER VARYING":
		return model.KindText
	default:
		c.logger.Warn("Unknown column type encountered, reading as text",
			zap.String("databaseType", dbType))
		return model.KindText
	}
}

// handleNumberType processes NUMBER type with precision/scale
func (c *TypeConverter) handleNumberType(fullType string, scale int64) model.Kind {
	if scale >= 0 {
		if scale == 0 {
			return model.KindInt
		}
		return model.KindFloat
	}

	matches := precisionScalePattern.FindStringSubmatch(fullType)
	if len(matches) < 3 || matches[2] == "" {
		// No scale specified: NUMERIC without scale can carry decimals
		return model.KindFloat
	}

	parsed, err := strconv.Atoi(matches[2])
	if err != nil || parsed > 0 {
		return model.KindFloat
	}
	return model.KindInt
}
