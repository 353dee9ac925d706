package container

// Header carries routing identity and the message type. Header IDs may
// be empty strings; message_type must be non-empty once parsed from the
// wire (enforced by codec.Parse, not by the type itself, since a
// Container under construction is allowed a transient empty type).
type Header struct {
	SourceID     string
	SourceSubID  string
	TargetID     string
	TargetSubID  string
	MessageType  string
}

// Container is the value container: a header plus an ordered sequence
// of named, typed body values. It is the single internal model for
// messages exchanged between tiers; JSON at the REST boundary and the
// TLV wire form are both adapters onto this type (spec's "collapse two
// hidden coding styles into one internal model" design note).
type Container struct {
	Header Header
	Values []Value
}

// New creates an empty container with the given header fields.
func New(sourceID, sourceSubID, targetID, targetSubID, messageType string) *Container {
	return &Container{
		Header: Header{
			SourceID:    sourceID,
			SourceSubID: sourceSubID,
			TargetID:    targetID,
			TargetSubID: targetSubID,
			MessageType: messageType,
		},
	}
}

// Add appends a value to the body. It returns the container so callers
// may chain appends as a left-shift-style combinator substitute:
// c.Add(a).Add(b).Add(c).
func (c *Container) Add(v Value) *Container {
	c.Values = append(c.Values, v)
	return c
}

// Lookup returns the first body value with the given name.
func (c *Container) Lookup(name string) (Value, bool) {
	for _, v := range c.Values {
		if v.Name == name {
			return v, true
		}
	}
	return Value{}, false
}

// LookupArray returns every body value with the given name, in
// insertion order.
func (c *Container) LookupArray(name string) []Value {
	var out []Value
	for _, v := range c.Values {
		if v.Name == name {
			out = append(out, v)
		}
	}
	return out
}

// SwapHeader exchanges source and target identity pairs in place.
// Applying it twice is the identity operation.
func (c *Container) SwapHeader() {
	c.Header.SourceID, c.Header.TargetID = c.Header.TargetID, c.Header.SourceID
	c.Header.SourceSubID, c.Header.TargetSubID = c.Header.TargetSubID, c.Header.SourceSubID
}

// Copy duplicates the container's structure. With includeBody false the
// returned container has an empty body and the same header — used by
// the router to synthesize an error response from a request's header
// alone (spec §4.7).
func (c *Container) Copy(includeBody bool) *Container {
	cp := &Container{Header: c.Header}
	if includeBody {
		cp.Values = make([]Value, len(c.Values))
		for i, v := range c.Values {
			cp.Values[i] = v.clone()
		}
	}
	return cp
}
