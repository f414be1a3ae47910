package syntax

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// extract builds a fresh declaration overlay from the file's current tree.
func (f *File) extract() *Node {
	root := f.tree.RootNode()
	fileNode := f.newNode(KindFile, "", root)
	switch f.language {
	case "go":
		f.extractGo(fileNode, root)
	case "python":
		f.extractPython(fileNode, root)
	}
	return fileNode
}

func (f *File) newNode(kind Kind, name string, raw *sitter.Node) *Node {
	f.nextID++
	return &Node{
		file:      f,
		id:        f.nextID,
		kind:      kind,
		name:      name,
		startByte: raw.StartByte(),
		endByte:   raw.EndByte(),
		rng:       raw.Range(),
	}
}

func (f *File) addChild(parent *Node, kind Kind, name string, raw *sitter.Node) *Node {
	n := f.newNode(kind, name, raw)
	n.parent = parent
	parent.children = append(parent.children, n)
	return n
}

func (f *File) fieldText(raw *sitter.Node, field string) string {
	c := raw.ChildByFieldName(field)
	if c == nil {
		return ""
	}
	return c.Content(f.content)
}

// extractGo maps the Go CST onto the overlay: package clause, imports,
// functions and methods, type declarations, and var/const declarations.
// Methods are named "Receiver.Name" so same-named methods on different
// receivers stay distinct. Go has no named local functions (closures are
// anonymous), so no local scan is needed.
func (f *File) extractGo(fileNode *Node, root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		c := root.NamedChild(i)
		switch c.Type() {
		case "package_clause":
			name := ""
			if c.NamedChildCount() > 0 {
				name = c.NamedChild(0).Content(f.content)
			}
			f.addChild(fileNode, KindPackage, name, c)
		case "import_declaration":
			f.addChild(fileNode, KindImport, "", c)
		case "function_declaration":
			f.addChild(fileNode, KindFunction, f.fieldText(c, "name"), c)
		case "method_declaration":
			name := f.fieldText(c, "name")
			if recv := goReceiverType(c, f.content); recv != "" {
				name = recv + "." + name
			}
			f.addChild(fileNode, KindFunction, name, c)
		case "type_declaration":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				spec := c.NamedChild(j)
				if spec.Type() == "type_spec" || spec.Type() == "type_alias" {
					f.addChild(fileNode, KindClass, f.fieldText(spec, "name"), spec)
				}
			}
		case "var_declaration", "const_declaration":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				spec := c.NamedChild(j)
				if spec.Type() == "var_spec" || spec.Type() == "const_spec" {
					f.addChild(fileNode, KindProperty, f.fieldText(spec, "name"), spec)
				}
			}
		}
	}
}

// goReceiverType digs the bare receiver type name out of a method
// declaration, stripping any pointer star.
func goReceiverType(method *sitter.Node, content []byte) string {
	recv := method.ChildByFieldName("receiver")
	if recv == nil || recv.NamedChildCount() == 0 {
		return ""
	}
	param := recv.NamedChild(0)
	typ := param.ChildByFieldName("type")
	if typ == nil {
		return ""
	}
	if typ.Type() == "pointer_type" && typ.NamedChildCount() > 0 {
		typ = typ.NamedChild(0)
	}
	return typ.Content(content)
}

// extractPython maps the Python CST onto the overlay: imports, top-level
// functions and classes (through decorators), class member functions, and
// simple module-level assignments. Named functions nested inside a function
// body are captured as local.
func (f *File) extractPython(fileNode *Node, root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		c := root.NamedChild(i)
		f.extractPythonDecl(fileNode, c, false)
	}
}

func (f *File) extractPythonDecl(parent *Node, c *sitter.Node, insideClass bool) {
	switch c.Type() {
	case "import_statement", "import_from_statement", "future_import_statement":
		if !insideClass {
			f.addChild(parent, KindImport, "", c)
		}
	case "decorated_definition":
		if def := c.ChildByFieldName("definition"); def != nil {
			// The overlay node spans the whole decorated definition so
			// that decorator edits count against the declaration.
			f.extractPythonDefinition(parent, def, c)
		}
	case "function_definition":
		f.extractPythonDefinition(parent, c, c)
	case "class_definition":
		f.extractPythonDefinition(parent, c, c)
	case "expression_statement":
		if insideClass || c.NamedChildCount() == 0 {
			return
		}
		expr := c.NamedChild(0)
		if expr.Type() != "assignment" {
			return
		}
		left := expr.ChildByFieldName("left")
		if left != nil && left.Type() == "identifier" {
			f.addChild(parent, KindProperty, left.Content(f.content), c)
		}
	}
}

func (f *File) extractPythonDefinition(parent *Node, def, span *sitter.Node) {
	name := f.fieldText(def, "name")
	switch def.Type() {
	case "function_definition":
		n := f.addChild(parent, KindFunction, name, span)
		if body := def.ChildByFieldName("body"); body != nil {
			f.extractPythonLocals(n, body)
		}
	case "class_definition":
		n := f.addChild(parent, KindClass, name, span)
		if body := def.ChildByFieldName("body"); body != nil {
			for i := 0; i < int(body.NamedChildCount()); i++ {
				f.extractPythonDecl(n, body.NamedChild(i), true)
			}
		}
	}
}

// extractPythonLocals finds named functions nested inside a function body.
func (f *File) extractPythonLocals(fn *Node, body *sitter.Node) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		c := body.NamedChild(i)
		switch c.Type() {
		case "function_definition":
			n := f.addChild(fn, KindFunction, f.fieldText(c, "name"), c)
			n.local = true
			if nested := c.ChildByFieldName("body"); nested != nil {
				f.extractPythonLocals(n, nested)
			}
		case "class_definition", "decorated_definition":
			// Local classes stay part of the enclosing function's region.
		default:
			f.extractPythonLocals(fn, c)
		}
	}
}
