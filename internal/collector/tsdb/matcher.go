package tsdb

import (
	"fmt"
	"strings"

	"github.com/prometheus/common/model"
)

// MatchOp операция сравнения значения лейбла
type MatchOp int

const (
	// MatchEqual лейбл должен быть равен значению
	MatchEqual MatchOp = iota
	// MatchNotEqual лейбл должен отличаться от значения
	MatchNotEqual
)

// Matcher сравнивает один лейбл серии с ожидаемым значением
type Matcher struct {
	Name  string
	Op    MatchOp
	Value string
}

// Matches проверяет metric против matcher-а.
// Отсутствующий лейбл считается пустой строкой (как в Prometheus).
func (m Matcher) Matches(metric model.Metric) bool {
	v := string(metric[model.LabelName(m.Name)])
	if m.Op == MatchEqual {
		return v == m.Value
	}
	return v != m.Value
}

// Selector описывает instant vector selector: имя метрики плюс label matchers.
// Поддерживается синтаксис вида: metric_name{label="value",other!="value"}
type Selector struct {
	Name     string
	Matchers []Matcher
}

// Matches проверяет, подходит ли серия под селектор
func (s Selector) Matches(metric model.Metric) bool {
	if s.Name != "" && string(metric[model.MetricNameLabel]) != s.Name {
		return false
	}
	for _, m := range s.Matchers {
		if !m.Matches(metric) {
			return false
		}
	}
	return true
}

// String возвращает каноничное текстовое представление селектора
func (s Selector) String() string {
	if len(s.Matchers) == 0 {
		return s.Name
	}
	parts := make([]string, 0, len(s.Matchers))
	for _, m := range s.Matchers {
		op := "="
		if m.Op == MatchNotEqual {
			op = "!="
		}
		parts = append(parts, fmt.Sprintf("%s%s%q", m.Name, op, m.Value))
	}
	return s.Name + "{" + strings.Join(parts, ",") + "}"
}

// ParseSelector парсит селектор вида `metric_name{label="value",other!="value"}`.
// Часть в фигурных скобках опциональна. Regex-матчинг не поддерживается.
func ParseSelector(input string) (Selector, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Selector{}, fmt.Errorf("empty selector")
	}

	braceIdx := strings.IndexByte(input, '{')
	var name, body string
	if braceIdx < 0 {
		name = input
	} else {
		name = input[:braceIdx]
		rest := input[braceIdx:]
		if !strings.HasSuffix(rest, "}") {
			return Selector{}, fmt.Errorf("selector %q: missing closing brace", input)
		}
		body = rest[1 : len(rest)-1]
	}

	name = strings.TrimSpace(name)
	if name != "" && !isValidMetricName(name) {
		return Selector{}, fmt.Errorf("selector %q: invalid metric name %q", input, name)
	}

	sel := Selector{Name: name}
	if strings.TrimSpace(body) == "" {
		if name == "" {
			return Selector{}, fmt.Errorf("selector %q: empty metric name and no matchers", input)
		}
		return sel, nil
	}

	matchers, err := parseMatchers(body)
	if err != nil {
		return Selector{}, fmt.Errorf("selector %q: %w", input, err)
	}
	sel.Matchers = matchers
	return sel, nil
}

// parseMatchers парсит содержимое фигурных скобок: k="v",k2!="v2"
func parseMatchers(body string) ([]Matcher, error) {
	var matchers []Matcher
	rest := body
	for {
		rest = strings.TrimSpace(rest)
		if rest == "" {
			break
		}

		// Имя лейбла до = или !=
		opIdx := strings.IndexAny(rest, "!=")
		if opIdx <= 0 {
			return nil, fmt.Errorf("invalid matcher near %q", rest)
		}
		name := strings.TrimSpace(rest[:opIdx])
		if !isValidLabelName(name) {
			return nil, fmt.Errorf("invalid label name %q", name)
		}

		op := MatchEqual
		if rest[opIdx] == '!' {
			if opIdx+1 >= len(rest) || rest[opIdx+1] != '=' {
				return nil, fmt.Errorf("invalid matcher operator near %q", rest)
			}
			op = MatchNotEqual
			rest = rest[opIdx+2:]
		} else {
			rest = rest[opIdx+1:]
		}

		rest = strings.TrimSpace(rest)
		if len(rest) == 0 || rest[0] != '"' {
			return nil, fmt.Errorf("matcher value must be quoted near %q", rest)
		}
		closeIdx := strings.IndexByte(rest[1:], '"')
		if closeIdx < 0 {
			return nil, fmt.Errorf("unterminated matcher value near %q", rest)
		}
		value := rest[1 : 1+closeIdx]
		rest = rest[closeIdx+2:]

		matchers = append(matchers, Matcher{Name: name, Op: op, Value: value})

		rest = strings.TrimSpace(rest)
		if rest == "" {
			break
		}
		if rest[0] != ',' {
			return nil, fmt.Errorf("expected ',' between matchers near %q", rest)
		}
		rest = rest[1:]
	}

	if len(matchers) == 0 {
		return nil, fmt.Errorf("empty matcher list")
	}
	return matchers, nil
}

func isValidMetricName(s string) bool {
	for i, r := range s {
		ok := r == '_' || r == ':' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(i > 0 && r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return len(s) > 0
}

func isValidLabelName(s string) bool {
	for i, r := range s {
		ok := r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(i > 0 && r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return len(s) > 0
}
