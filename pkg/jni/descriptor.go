package jni

// TagOf maps a single descriptor character to its TypeTag.
// Unrecognized characters map to Void.
func TagOf(c byte) TypeTag {
	switch c {
	case 'L', '[':
		return Object
	case 'Z':
		return Boolean
	case 'B':
		return Byte
	case 'C':
		return Char
	case 'S':
		return Short
	case 'I':
		return Int
	case 'J':
		return Long
	case 'F':
		return Float
	case 'D':
		return Double
	case 'V':
		return Void
	}
	return Void
}

// MethodSignature is the parsed form of a method descriptor.
type MethodSignature struct {
	Args   []TypeTag
	Return TypeTag
}

// Arity returns the number of declared arguments.
func (s MethodSignature) Arity() int {
	return len(s.Args)
}

// String renders the signature back into descriptor form. Object
// arguments are rendered as java/lang/Object since class names are not kept.
func (s MethodSignature) String() string {
	buf := make([]byte, 0, 2+len(s.Args)*2)
	buf = append(buf, '(')
	for _, a := range s.Args {
		if a == Object {
			buf = append(buf, "Ljava/lang/Object;"...)
			continue
		}
		buf = append(buf, a.Descriptor())
	}
	buf = append(buf, ')')
	if s.Return == Object {
		return string(append(buf, "Ljava/lang/Object;"...))
	}
	return string(append(buf, s.Return.Descriptor()))
}

// ParseMethodDescriptor parses a descriptor of the form
// "(" {argument} ")" return.
//
// Object and array arguments both produce a single Object slot and class
// names are not validated. Unknown characters produce Void. A descriptor that
// does not start with '(' yields an empty signature returning Void.
func ParseMethodDescriptor(text string) MethodSignature {
	sig := MethodSignature{Return: Void}
	if len(text) == 0 || text[0] != '(' {
		return sig
	}

	i := 1
	for i < len(text) && text[i] != ')' {
		tag := TagOf(text[i])
		if text[i] == '[' {
			for i < len(text) && text[i] == '[' {
				i++
			}
		}
		if i < len(text) && text[i] == 'L' {
			for i < len(text) && text[i] != ';' {
				i++
			}
		}
		// consumes the base character or the ';'
		if i < len(text) && text[i] != ')' {
			i++
		}
		sig.Args = append(sig.Args, tag)
	}

	if i < len(text) && text[i] == ')' && i+1 < len(text) {
		sig.Return = TagOf(text[i+1])
	}
	return sig
}

// ParseFieldDescriptor returns the tag of a field descriptor.
func ParseFieldDescriptor(text string) TypeTag {
	if len(text) == 0 {
		return Void
	}
	return TagOf(text[0])
}
