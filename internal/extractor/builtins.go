package extractor

import (
	"regexp"
	"strings"
)

// builtinTypes are primitive and platform type names. They never resolve
// to entities and are never recorded as references.
var builtinTypes = map[string]struct{}{
	"int": {}, "char": {}, "float": {}, "double": {}, "void": {},
	"short": {}, "long": {}, "signed": {}, "unsigned": {},
	"size_t": {}, "ssize_t": {}, "ptrdiff_t": {}, "wchar_t": {},
	"bool": {}, "_Bool": {}, "FILE": {},
	"int8_t": {}, "int16_t": {}, "int32_t": {}, "int64_t": {},
	"uint8_t": {}, "uint16_t": {}, "uint32_t": {}, "uint64_t": {},
	"intptr_t": {}, "uintptr_t": {}, "intmax_t": {}, "uintmax_t": {},
	"va_list": {},
}

// cKeywords covers every reserved word that can show up when scanning raw
// macro replacement text, where no grammar separates names from syntax.
var cKeywords = map[string]struct{}{
	"auto": {}, "break": {}, "case": {}, "char": {}, "const": {},
	"continue": {}, "default": {}, "do": {}, "double": {}, "else": {},
	"enum": {}, "extern": {}, "float": {}, "for": {}, "goto": {},
	"if": {}, "inline": {}, "int": {}, "long": {}, "register": {},
	"restrict": {}, "return": {}, "short": {}, "signed": {}, "sizeof": {},
	"static": {}, "struct": {}, "switch": {}, "typedef": {}, "union": {},
	"unsigned": {}, "void": {}, "volatile": {}, "while": {},
	"_Alignas": {}, "_Alignof": {}, "_Atomic": {}, "_Generic": {},
	"_Noreturn": {}, "_Static_assert": {}, "_Thread_local": {},
}

// commonDefines are platform and feature-test macros that carry no
// porting value and would otherwise show up as constants in every tree.
var commonDefines = map[string]struct{}{
	"_MSC_VER": {}, "_WIN32": {}, "_WIN64": {},
	"__GNUC__": {}, "__clang__": {}, "__cplusplus": {},
	"_GNU_SOURCE": {}, "_POSIX_C_SOURCE": {}, "_XOPEN_SOURCE": {},
	"__STDC__": {}, "__STDC_VERSION__": {}, "NDEBUG": {},
}

// guardSuffixes match the include-guard naming conventions seen across C
// projects (ZOPFLI_ZLIB_H, FOO_H_, BAR_INCLUDED, ...).
var guardSuffixes = []string{"_H", "_H_", "_H__", "_HPP", "_HPP_", "_INCLUDED", "_GUARD"}

func isKeyword(name string) bool {
	_, ok := cKeywords[name]
	return ok
}

// skipMacro filters out macro names that are plumbing rather than
// entities: include guards, reserved double-underscore names, platform
// probes, and one/two-letter shorthands.
func skipMacro(name string) bool {
	if len(name) <= 2 {
		return true
	}
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return true
	}
	if _, ok := commonDefines[name]; ok {
		return true
	}
	for _, suffix := range guardSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// identPattern tokenizes raw preprocessor replacement text, which
// tree-sitter exposes as an opaque blob rather than a parsed expression.
// The boundaries keep the suffix of a hex literal like 0xFF from
// matching as a name.
var identPattern = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\b`)
