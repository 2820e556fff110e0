package cot

// Parse decodes text into a Message: the typed envelope plus the raw detail
// fragments. The detail scan runs first and the envelope decode second; the
// first failing pass decides the returned error.
func Parse(text string) (Message, error) {
	frags, err := ExtractDetailString(text)
	if err != nil {
		return Message{}, err
	}
	base, err := Decode[NoDetail](text)
	if err != nil {
		return Message{}, err
	}
	msg := FromBase(base)
	msg.Detail = frags
	return msg, nil
}

// ParseType returns the type attribute of the event without decoding the
// rest of the document.
func ParseType(text string) (string, error) {
	return FirstElementAttr(text, ElementEvent, AttrType)
}

// FirstElementAttr streams text until the first element named element and
// returns its attribute attr. Scanning stops at that element whether or not
// it carries the attribute.
func FirstElementAttr(text, element, attr string) (string, error) {
	t := NewTokenizer([]byte(text))
	for {
		tok, err := t.Next()
		if err != nil {
			return "", err
		}
		switch tok.Kind {
		case TokenEOF:
			return "", &MissingFieldError{Element: element}
		case TokenStart, TokenEmpty:
			if tok.Name != element {
				continue
			}
			for _, a := range tok.Attr {
				if a.Name.Local == attr {
					return a.Value, nil
				}
			}
			return "", &MissingFieldError{Element: element, Attribute: attr}
		}
	}
}
