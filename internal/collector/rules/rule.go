package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shestoi/vigil/internal/collector/tsdb"
)

// CompareOp операция сравнения в пороговом выражении правила
type CompareOp string

const (
	OpGreater        CompareOp = ">"
	OpGreaterOrEqual CompareOp = ">="
	OpLess           CompareOp = "<"
	OpLessOrEqual    CompareOp = "<="
	OpEqual          CompareOp = "=="
	OpNotEqual       CompareOp = "!="
)

// Compare применяет операцию к значению серии и порогу
func (op CompareOp) Compare(value, threshold float64) bool {
	switch op {
	case OpGreater:
		return value > threshold
	case OpGreaterOrEqual:
		return value >= threshold
	case OpLess:
		return value < threshold
	case OpLessOrEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	case OpNotEqual:
		return value != threshold
	}
	return false
}

// Expr разобранное пороговое выражение: селектор, операция, порог.
// Пример исходного текста: `http_errors_total{job="api"} > 10`
type Expr struct {
	Selector  tsdb.Selector
	Op        CompareOp
	Threshold float64
}

// String возвращает каноничный текст выражения
func (e Expr) String() string {
	return fmt.Sprintf("%s %s %s", e.Selector, e.Op, strconv.FormatFloat(e.Threshold, 'g', -1, 64))
}

// Rule алертинг-правило из конфигурации
type Rule struct {
	// Name имя алерта (лейбл alertname у результата)
	Name string
	// Expr пороговое выражение
	Expr Expr
	// For сколько выражение должно оставаться истинным до перехода в firing
	For time.Duration
	// Labels дополнительные лейблы, добавляемые к алерту
	Labels map[string]string
	// Annotations аннотации (summary, description и т.д.)
	Annotations map[string]string
}

// ParseExpr парсит пороговое выражение: `<selector> <op> <number>`.
// Оператор ищется вне фигурных скобок, чтобы не спутать != в matcher-ах
// с оператором сравнения.
func ParseExpr(input string) (Expr, error) {
	opIdx, opLen := findCompareOp(input)
	if opIdx < 0 {
		return Expr{}, fmt.Errorf("expr %q: comparison operator not found", input)
	}

	selPart := strings.TrimSpace(input[:opIdx])
	op := CompareOp(input[opIdx : opIdx+opLen])
	thresholdPart := strings.TrimSpace(input[opIdx+opLen:])

	sel, err := tsdb.ParseSelector(selPart)
	if err != nil {
		return Expr{}, fmt.Errorf("expr %q: %w", input, err)
	}

	threshold, err := strconv.ParseFloat(thresholdPart, 64)
	if err != nil {
		return Expr{}, fmt.Errorf("expr %q: invalid threshold %q", input, thresholdPart)
	}

	return Expr{Selector: sel, Op: op, Threshold: threshold}, nil
}

// findCompareOp находит первый оператор сравнения вне фигурных скобок.
// Возвращает позицию и длину оператора, либо (-1, 0).
func findCompareOp(input string) (int, int) {
	depth := 0
	for i := 0; i < len(input); i++ {
		switch input[i] {
		case '{':
			depth++
		case '}':
			depth--
		case '>', '<':
			if depth != 0 {
				continue
			}
			if i+1 < len(input) && input[i+1] == '=' {
				return i, 2
			}
			return i, 1
		case '=', '!':
			if depth != 0 {
				continue
			}
			if i+1 < len(input) && input[i+1] == '=' {
				return i, 2
			}
		}
	}
	return -1, 0
}
