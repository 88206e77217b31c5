package model

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ObjectID identifies anything the document owns: objects, layers, block
// definitions, materials, textures, environments and views.
type ObjectID = uuid.UUID

// ContentID is the structural hash of render-affecting content. Zero means
// "no content".
type ContentID uint32

func (id ContentID) String() string { return fmt.Sprintf("%08x", uint32(id)) }

// GeometryID is the structural hash of a mesh payload.
type GeometryID uint32

func (id GeometryID) String() string { return fmt.Sprintf("%08x", uint32(id)) }

// InstanceID identifies one placement of a mesh in the flattened scene. It is
// derived from the reference path, so it stays stable across flushes.
type InstanceID uint32

func (id InstanceID) String() string { return fmt.Sprintf("%08x", uint32(id)) }

func ParseObjectID(s string) (ObjectID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid object id %q: %w", s, err)
	}
	return id, nil
}

// ParseContentID parses the hex form produced by ContentID.String. A
// leading "0x" is accepted.
func ParseContentID(s string) (ContentID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid content id %q: %w", s, err)
	}
	return ContentID(v), nil
}

// CompareIDs orders object ids bytewise, for deterministic output.
func CompareIDs(a, b ObjectID) int { return bytes.Compare(a[:], b[:]) }
