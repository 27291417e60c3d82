package cl

import (
	"fmt"
	"regexp"
	"strings"
)

type argKind int

const (
	argGlobalReadOnly argKind = iota
	argGlobal
	argScalar
)

type paramDecl struct {
	name string
	kind argKind
	size int
}

type kernelDecl struct {
	name   string
	line   int
	params []paramDecl
}

var (
	kernelPattern  = regexp.MustCompile(`(?:__kernel|\bkernel)\s+void\s+([A-Za-z_]\w*)\s*\(([^)]*)\)`)
	blockComment   = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment    = regexp.MustCompile(`//[^\n]*`)
	identPattern   = regexp.MustCompile(`[A-Za-z_]\w*`)
	tokenPattern   = regexp.MustCompile(`\$\d+|[A-Za-z_]\w*|\d+(?:\.\d*)?[fFuUlL]*|\S`)
	scalarSizes    = map[string]int{"char": 1, "uchar": 1, "short": 2, "ushort": 2, "half": 2, "int": 4, "uint": 4, "float": 4, "long": 8, "ulong": 8, "double": 8}
	typeQualifiers = map[string]bool{"const": true, "__private": true, "private": true, "volatile": true, "restrict": true}
	reservedWords  = map[string]bool{
		"void": true, "size_t": true, "return": true, "if": true, "else": true, "for": true, "while": true,
		"get_global_id": true, "get_global_size": true, "get_local_id": true, "get_local_size": true, "get_group_id": true,
	}
)

// compileHost checks kernel declarations in source and binds them to host
// implementations. A kernel body must match one registered for its host
// implementation. The returned log is in compiler diagnostic form and is
// empty on success.
func compileHost(source string) (map[string]*kernelDecl, string, error) {
	var diags []string
	fail := func(line int, format string, args ...any) {
		diags = append(diags, fmt.Sprintf("<source>:%d: error: %s", line, fmt.Sprintf(format, args...)))
	}

	code := stripComments(source)

	if line, open, ok := checkBalance(code); !ok {
		fail(line, "unbalanced '%c'", open)
		return nil, strings.Join(diags, "\n"), BuildProgramFailure
	}

	matches := kernelPattern.FindAllStringSubmatchIndex(code, -1)
	if len(matches) == 0 {
		fail(1, "no kernel entry points found")
		return nil, strings.Join(diags, "\n"), BuildProgramFailure
	}

	decls := make(map[string]*kernelDecl, len(matches))
	for _, m := range matches {
		name := code[m[2]:m[3]]
		line := 1 + strings.Count(code[:m[0]], "\n")
		if _, dup := decls[name]; dup {
			fail(line, "redefinition of kernel '%s'", name)
			continue
		}

		decl := &kernelDecl{name: name, line: line}
		paramsOK := true
		for _, raw := range splitParams(code[m[4]:m[5]]) {
			p, err := parseParam(raw)
			if err != nil {
				fail(line, "kernel '%s': %v", name, err)
				paramsOK = false
				continue
			}
			decl.params = append(decl.params, p)
		}

		impl, ok := lookupHostKernel(name)
		switch {
		case !ok:
			fail(line, "kernel '%s' has no host implementation", name)
		case impl.params != len(decl.params):
			fail(line, "kernel '%s' declares %d parameters, host implementation takes %d", name, len(decl.params), impl.params)
		case paramsOK && !impl.accepts(normalizeBody(kernelBody(code, m[1]), decl.params)):
			fail(line, "kernel '%s' body is not supported by the host device", name)
		}
		decls[name] = decl
	}

	if len(diags) > 0 {
		return nil, strings.Join(diags, "\n"), BuildProgramFailure
	}
	return decls, "", nil
}

// kernelBody returns the text between the braces following a kernel
// signature ending at offset end, or "" for a bare prototype.
func kernelBody(code string, end int) string {
	rest := strings.TrimLeft(code[end:], " \t\r\n")
	if !strings.HasPrefix(rest, "{") {
		return ""
	}
	depth := 0
	for i, r := range rest {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return rest[1:i]
			}
		}
	}
	return rest[1:]
}

// normalizeBody reduces a kernel body to a token string: parameter names
// become $0, $1, ..., other identifiers are numbered by first use, and
// const qualifiers and whitespace are dropped.
func normalizeBody(body string, params []paramDecl) string {
	paramIndex := make(map[string]int, len(params))
	for i, p := range params {
		paramIndex[p.name] = i
	}
	locals := map[string]string{}

	var out []string
	for _, tok := range tokenPattern.FindAllString(body, -1) {
		switch {
		case tok == "const" || tok == "__private" || tok == "private":
			continue
		case tok[0] == '$' || !identPattern.MatchString(tok[:1]):
		case reservedWords[tok] || scalarSizes[tok] != 0:
		default:
			if i, ok := paramIndex[tok]; ok {
				tok = fmt.Sprintf("$%d", i)
				break
			}
			local, ok := locals[tok]
			if !ok {
				local = fmt.Sprintf("%%%d", len(locals))
				locals[tok] = local
			}
			tok = local
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

// stripComments blanks comments while keeping line numbers intact.
func stripComments(src string) string {
	src = blockComment.ReplaceAllStringFunc(src, func(c string) string {
		return strings.Repeat("\n", strings.Count(c, "\n"))
	})
	return lineComment.ReplaceAllString(src, "")
}

// checkBalance returns the line and bracket of the first mismatch.
func checkBalance(code string) (int, rune, bool) {
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	type open struct {
		r    rune
		line int
	}
	var stack []open
	line := 1
	for _, r := range code {
		switch r {
		case '\n':
			line++
		case '(', '[', '{':
			stack = append(stack, open{r, line})
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1].r != pairs[r] {
				return line, r, false
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return top.line, top.r, false
	}
	return 0, 0, true
}

func splitParams(list string) []string {
	list = strings.TrimSpace(list)
	if list == "" || list == "void" {
		return nil
	}
	parts := strings.Split(list, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseParam(raw string) (paramDecl, error) {
	if raw == "" {
		return paramDecl{}, fmt.Errorf("empty parameter")
	}

	star := strings.Index(raw, "*")
	words := identPattern.FindAllString(raw, -1)
	if len(words) < 2 {
		return paramDecl{}, fmt.Errorf("parameter %q has no name", raw)
	}
	name := words[len(words)-1]

	if star >= 0 {
		qualifiers := identPattern.FindAllString(raw[:star], -1)
		var global, readOnly bool
		for _, q := range qualifiers {
			switch q {
			case "__global", "global", "__constant", "constant":
				global = true
				if strings.HasSuffix(q, "constant") {
					readOnly = true
				}
			case "__local", "local":
				return paramDecl{}, fmt.Errorf("local memory parameter '%s' is not supported on the host device", name)
			case "const":
				readOnly = true
			}
		}
		if !global {
			return paramDecl{}, fmt.Errorf("pointer parameter '%s' must point to global memory", name)
		}
		kind := argGlobal
		if readOnly {
			kind = argGlobalReadOnly
		}
		return paramDecl{name: name, kind: kind, size: 8}, nil
	}

	for _, w := range words[:len(words)-1] {
		if typeQualifiers[w] {
			continue
		}
		size, ok := scalarSizes[w]
		if !ok {
			return paramDecl{}, fmt.Errorf("unsupported parameter type '%s'", w)
		}
		return paramDecl{name: name, kind: argScalar, size: size}, nil
	}
	return paramDecl{}, fmt.Errorf("parameter '%s' has no type", name)
}
