package resolver

// Per-language sets of names that always resolve without a declaration.
var builtinNames = map[string]map[string]bool{
	"go": setOf(
		"append", "bool", "byte", "cap", "close", "complex", "copy",
		"delete", "error", "false", "float32", "float64", "imag", "int",
		"int8", "int16", "int32", "int64", "iota", "len", "make", "max",
		"min", "new", "nil", "panic", "print", "println", "real",
		"recover", "rune", "string", "true", "uint", "uint8", "uint16",
		"uint32", "uint64", "uintptr", "any",
	),
	"python": setOf(
		"abs", "bool", "bytes", "dict", "enumerate", "Exception",
		"False", "float", "getattr", "hasattr", "int", "isinstance",
		"len", "list", "map", "max", "min", "None", "object", "open",
		"print", "range", "repr", "set", "self", "sorted", "str", "sum",
		"super", "True", "tuple", "type", "ValueError", "zip", "cls",
		"__name__",
	),
}

func setOf(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func isBuiltin(language, name string) bool {
	return builtinNames[language][name]
}
