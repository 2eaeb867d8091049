package evaluator

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query"
	"github.com/ansell/openrdf-sesame-sub028/pkg/query/algebra"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// Function computes a value from evaluated arguments.
type Function func(args ...rdf.Term) (rdf.Term, error)

// FunctionRegistry maps function names and IRIs to implementations. A
// registry is created once and handed to every evaluator that needs it.
type FunctionRegistry struct {
	mu    sync.RWMutex
	funcs map[string]Function
}

// NewFunctionRegistry returns a registry holding the built-in functions
// and the XSD casts.
func NewFunctionRegistry() *FunctionRegistry {
	r := &FunctionRegistry{funcs: make(map[string]Function)}
	for name, fn := range builtins {
		r.funcs[name] = fn
	}
	for _, dt := range []*rdf.NamedNode{
		rdf.XSDString, rdf.XSDInteger, rdf.XSDDecimal, rdf.XSDDouble, rdf.XSDFloat,
		rdf.XSDInt, rdf.XSDLong, rdf.XSDBoolean, rdf.XSDDateTime, rdf.XSDDate,
	} {
		r.funcs[dt.IRI] = typeCast(dt)
	}
	return r
}

// normalizeName upper-cases keyword names. IRIs are case sensitive.
func normalizeName(name string) string {
	if strings.Contains(name, ":") {
		return name
	}
	return strings.ToUpper(name)
}

// Register adds fn under name. Registering a name twice is an error.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	key := normalizeName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.funcs[key]; dup {
		return errors.Newf(errors.ErrMalformedInput, "function %s already registered", name)
	}
	r.funcs[key] = fn
	return nil
}

// Lookup returns the function registered under name.
func (r *FunctionRegistry) Lookup(name string) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[normalizeName(name)]
	return fn, ok
}

// Names returns the registered names, sorted.
func (r *FunctionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// evaluateFunctionCall evaluates the arguments and calls the function.
func (e *Evaluator) evaluateFunctionCall(expr *algebra.FunctionCall, bindings *query.BindingSet) (rdf.Term, error) {
	fn, ok := e.functions.Lookup(expr.Name)
	if !ok {
		return nil, errors.Newf(errors.ErrMalformedInput, "unsupported function: %s", expr.Name)
	}
	args := make([]rdf.Term, len(expr.Args))
	for i, arg := range expr.Args {
		v, err := e.Evaluate(arg, bindings)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return fn(args...)
}

var builtins = map[string]Function{
	// Type checking functions
	"ISIRI":     termTest(func(t rdf.Term) bool { _, ok := t.(*rdf.NamedNode); return ok }),
	"ISURI":     termTest(func(t rdf.Term) bool { _, ok := t.(*rdf.NamedNode); return ok }),
	"ISBLANK":   termTest(func(t rdf.Term) bool { _, ok := t.(*rdf.BlankNode); return ok }),
	"ISLITERAL": termTest(func(t rdf.Term) bool { _, ok := t.(*rdf.Literal); return ok }),
	"ISNUMERIC": termTest(func(t rdf.Term) bool { _, ok := extractNumeric(t); return ok }),

	// Value extraction functions
	"STR":      evaluateStr,
	"LANG":     evaluateLang,
	"DATATYPE": evaluateDatatype,

	// String functions
	"STRLEN":      evaluateStrLen,
	"SUBSTR":      evaluateSubStr,
	"UCASE":       stringMap("UCASE", strings.ToUpper),
	"LCASE":       stringMap("LCASE", strings.ToLower),
	"CONCAT":      evaluateConcat,
	"CONTAINS":    stringTest("CONTAINS", strings.Contains),
	"STRSTARTS":   stringTest("STRSTARTS", strings.HasPrefix),
	"STRENDS":     stringTest("STRENDS", strings.HasSuffix),
	"REGEX":       evaluateRegex,
	"LANGMATCHES": evaluateLangMatches,

	// Numeric functions
	"ABS":   numericMap("ABS", math.Abs, false),
	"CEIL":  numericMap("CEIL", math.Ceil, true),
	"FLOOR": numericMap("FLOOR", math.Floor, true),
	"ROUND": numericMap("ROUND", math.Round, true),
}

func arity(name string, args []rdf.Term, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return errors.Newf(errors.ErrMalformedInput, "%s requires exactly %d argument(s)", name, min)
		}
		return errors.Newf(errors.ErrMalformedInput, "%s requires %d to %d arguments", name, min, max)
	}
	return nil
}

func termTest(test func(rdf.Term) bool) Function {
	return func(args ...rdf.Term) (rdf.Term, error) {
		if err := arity("type test", args, 1, 1); err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(test(args[0])), nil
	}
}

func evaluateStr(args ...rdf.Term) (rdf.Term, error) {
	if err := arity("STR", args, 1, 1); err != nil {
		return nil, err
	}
	switch t := args[0].(type) {
	case *rdf.NamedNode:
		return rdf.NewLiteral(t.IRI), nil
	case *rdf.Literal:
		return rdf.NewLiteral(t.Value), nil
	}
	return nil, typeError("STR cannot be applied to %v", args[0])
}

func evaluateLang(args ...rdf.Term) (rdf.Term, error) {
	if err := arity("LANG", args, 1, 1); err != nil {
		return nil, err
	}
	lit, ok := args[0].(*rdf.Literal)
	if !ok {
		return nil, typeError("LANG can only be applied to literals")
	}
	return rdf.NewLiteral(lit.Language), nil
}

func evaluateDatatype(args ...rdf.Term) (rdf.Term, error) {
	if err := arity("DATATYPE", args, 1, 1); err != nil {
		return nil, err
	}
	lit, ok := args[0].(*rdf.Literal)
	if !ok {
		return nil, typeError("DATATYPE can only be applied to literals")
	}
	switch {
	case lit.Datatype != nil:
		return lit.Datatype, nil
	case lit.Language != "":
		return rdf.RDFLangString, nil
	}
	return rdf.XSDString, nil
}

// extractString returns the lexical form of a string literal or IRI.
func extractString(term rdf.Term) (string, error) {
	switch t := term.(type) {
	case *rdf.Literal:
		return t.Value, nil
	case *rdf.NamedNode:
		return t.IRI, nil
	}
	return "", typeError("cannot extract string from %v", term)
}

func evaluateStrLen(args ...rdf.Term) (rdf.Term, error) {
	if err := arity("STRLEN", args, 1, 1); err != nil {
		return nil, err
	}
	str, err := extractString(args[0])
	if err != nil {
		return nil, err
	}
	return rdf.NewIntegerLiteral(int64(utf8.RuneCountInString(str))), nil
}

func evaluateSubStr(args ...rdf.Term) (rdf.Term, error) {
	if err := arity("SUBSTR", args, 2, 3); err != nil {
		return nil, err
	}
	str, err := extractString(args[0])
	if err != nil {
		return nil, err
	}
	runes := []rune(str)

	start, ok := extractNumeric(args[1])
	if !ok {
		return nil, typeError("SUBSTR start position must be numeric")
	}
	// 1-based
	startIdx := int(math.Round(start)) - 1
	endIdx := len(runes)
	if len(args) == 3 {
		length, ok := extractNumeric(args[2])
		if !ok {
			return nil, typeError("SUBSTR length must be numeric")
		}
		endIdx = startIdx + int(math.Round(length))
	}
	if startIdx < 0 {
		startIdx = 0
	}
	if endIdx > len(runes) {
		endIdx = len(runes)
	}
	if startIdx >= endIdx {
		return rdf.NewLiteral(""), nil
	}
	return rdf.NewLiteral(string(runes[startIdx:endIdx])), nil
}

func stringMap(name string, fn func(string) string) Function {
	return func(args ...rdf.Term) (rdf.Term, error) {
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		str, err := extractString(args[0])
		if err != nil {
			return nil, err
		}
		return rdf.NewLiteral(fn(str)), nil
	}
}

func stringTest(name string, fn func(a, b string) bool) Function {
	return func(args ...rdf.Term) (rdf.Term, error) {
		if err := arity(name, args, 2, 2); err != nil {
			return nil, err
		}
		a, err := extractString(args[0])
		if err != nil {
			return nil, err
		}
		b, err := extractString(args[1])
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(fn(a, b)), nil
	}
}

func evaluateConcat(args ...rdf.Term) (rdf.Term, error) {
	var result strings.Builder
	for _, arg := range args {
		str, err := extractString(arg)
		if err != nil {
			return nil, err
		}
		result.WriteString(str)
	}
	return rdf.NewLiteral(result.String()), nil
}

func numericMap(name string, fn func(float64) float64, integral bool) Function {
	return func(args ...rdf.Term) (rdf.Term, error) {
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		val, ok := extractNumeric(args[0])
		if !ok {
			return nil, typeError("%s requires a numeric argument", name)
		}
		if integral {
			return rdf.NewIntegerLiteral(int64(fn(val))), nil
		}
		return createNumericLiteral(fn(val), args[0], args[0]), nil
	}
}

func evaluateRegex(args ...rdf.Term) (rdf.Term, error) {
	// REGEX(text, pattern) or REGEX(text, pattern, flags)
	if err := arity("REGEX", args, 2, 3); err != nil {
		return nil, err
	}
	text, err := extractString(args[0])
	if err != nil {
		return nil, err
	}
	pattern, err := extractString(args[1])
	if err != nil {
		return nil, err
	}
	var flags string
	if len(args) == 3 {
		if flags, err = extractString(args[2]); err != nil {
			return nil, err
		}
	}

	// i, m, s and x map onto Go flag groups; q quotes the pattern.
	var flagPrefix string
	for _, flag := range flags {
		switch flag {
		case 'i', 'm', 's', 'x':
			flagPrefix += string(flag)
		case 'q':
			pattern = regexp.QuoteMeta(pattern)
		default:
			return nil, typeError("unsupported REGEX flag: %c", flag)
		}
	}
	if flagPrefix != "" {
		pattern = "(?" + flagPrefix + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, typeError("invalid regex pattern: %v", err)
	}
	return rdf.NewBooleanLiteral(re.MatchString(text)), nil
}

func evaluateLangMatches(args ...rdf.Term) (rdf.Term, error) {
	if err := arity("LANGMATCHES", args, 2, 2); err != nil {
		return nil, err
	}
	tag, err := extractString(args[0])
	if err != nil {
		return nil, err
	}
	langRange, err := extractString(args[1])
	if err != nil {
		return nil, err
	}

	tag = strings.ToLower(tag)
	langRange = strings.ToLower(langRange)
	switch {
	case langRange == "*":
		return rdf.NewBooleanLiteral(tag != ""), nil
	case tag == langRange:
		return rdf.NewBooleanLiteral(true), nil
	}
	// "de" matches "de-DE" but not "deu"
	return rdf.NewBooleanLiteral(strings.HasPrefix(tag, langRange+"-")), nil
}

// typeCast keeps the lexical form and relabels it with the target
// datatype. Numeric and boolean targets check the form first.
func typeCast(datatype *rdf.NamedNode) Function {
	return func(args ...rdf.Term) (rdf.Term, error) {
		if err := arity(datatype.IRI, args, 1, 1); err != nil {
			return nil, err
		}
		value, err := extractString(args[0])
		if err != nil {
			return nil, err
		}
		if _, isBlank := args[0].(*rdf.BlankNode); isBlank {
			return nil, typeError("cannot cast blank node to %s", datatype.IRI)
		}
		out := rdf.NewLiteralWithDatatype(strings.TrimSpace(value), datatype)
		if isNumericType(datatype.IRI) {
			if _, ok := extractNumeric(out); !ok {
				return nil, typeError("cannot cast %q to %s", value, datatype.IRI)
			}
		}
		if datatype.IRI == rdf.XSDBoolean.IRI {
			if _, err := EffectiveBooleanValue(out); err != nil || (out.Value != "true" && out.Value != "false" && out.Value != "1" && out.Value != "0") {
				return nil, typeError("cannot cast %q to %s", value, datatype.IRI)
			}
		}
		return out, nil
	}
}
