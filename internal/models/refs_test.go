package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAppendRefIsIdempotent(t *testing.T) {
	ref := EntityRef{OwnerID: uuid.New(), ID: uuid.New()}

	refs := AppendRef(nil, ref)
	refs = AppendRef(refs, ref)
	assert.Equal(t, []EntityRef{ref}, refs)

	other := EntityRef{OwnerID: ref.OwnerID, ID: uuid.New()}
	refs = AppendRef(refs, other)
	assert.Len(t, refs, 2)
}

func TestRemoveRefMissingIsNoOp(t *testing.T) {
	a := EntityRef{OwnerID: uuid.New(), ID: uuid.New()}
	b := EntityRef{OwnerID: uuid.New(), ID: uuid.New()}

	refs := RemoveRef([]EntityRef{a}, b)
	assert.Equal(t, []EntityRef{a}, refs)

	refs = RemoveRef(refs, a)
	assert.Empty(t, refs)
	refs = RemoveRef(refs, a)
	assert.Empty(t, refs)
}

func TestContainsRefMatchesOwnerAndID(t *testing.T) {
	ref := EntityRef{OwnerID: uuid.New(), ID: uuid.New()}
	refs := []EntityRef{ref}

	assert.True(t, ContainsRef(refs, ref))
	assert.False(t, ContainsRef(refs, EntityRef{OwnerID: ref.OwnerID, ID: uuid.New()}))
	assert.False(t, ContainsRef(refs, EntityRef{OwnerID: uuid.New(), ID: ref.ID}))
}
