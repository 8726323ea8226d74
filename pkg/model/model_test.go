package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uintPtr(v uint) *uint { return &v }

func TestValidateConceptDBName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "snomed", false},
		{"with underscore and dash", "umls_v1-2024", false},
		{"with digits", "cdb01", false},
		{"empty", "", true},
		{"uppercase first", "Snomed", true},
		{"leading digit", "1cdb", true},
		{"space", "my cdb", true},
		{"dot", "cdb.v1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConceptDBName(tt.input)
			if tt.wantErr {
				var vErr *ValidationError
				require.Error(t, err)
				assert.True(t, errors.As(err, &vErr))
				assert.Equal(t, "name", vErr.Field)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProjectValidate(t *testing.T) {
	t.Run("cdb and vocab pair", func(t *testing.T) {
		p := NewProject("p", 1)
		p.ConceptDBID = uintPtr(1)
		p.VocabID = uintPtr(2)
		assert.NoError(t, p.Validate())
		assert.False(t, p.UsesModelPack())
	})

	t.Run("model pack only", func(t *testing.T) {
		p := NewProject("p", 1)
		p.ModelPackID = uintPtr(3)
		assert.NoError(t, p.Validate())
		assert.True(t, p.UsesModelPack())
	})

	t.Run("both configured", func(t *testing.T) {
		p := NewProject("p", 1)
		p.ConceptDBID = uintPtr(1)
		p.ModelPackID = uintPtr(3)
		err := p.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "one or the other")
	})

	t.Run("neither configured", func(t *testing.T) {
		p := NewProject("p", 1)
		err := p.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Must set at least")
	})

	t.Run("cdb without vocab", func(t *testing.T) {
		p := NewProject("p", 1)
		p.ConceptDBID = uintPtr(1)
		assert.Error(t, p.Validate())
	})

	t.Run("missing dataset", func(t *testing.T) {
		p := NewProject("p", 0)
		p.ModelPackID = uintPtr(3)
		assert.Error(t, p.Validate())
	})

	t.Run("unknown status", func(t *testing.T) {
		p := NewProject("p", 1)
		p.ModelPackID = uintPtr(3)
		p.ProjectStatus = "X"
		assert.Error(t, p.Validate())
	})
}

func TestProjectMembers(t *testing.T) {
	p := NewProject("p", 1)
	p.Members = []User{{ID: 4}, {ID: 9}}

	assert.Equal(t, []uint{4, 9}, p.MemberIDs())
	assert.True(t, p.HasMember(9))
	assert.False(t, p.HasMember(5))
}

func TestAnnotatedEntityOverlaps(t *testing.T) {
	a := &AnnotatedEntity{StartInd: 10, EndInd: 20}

	assert.True(t, a.Overlaps(15, 25))
	assert.True(t, a.Overlaps(5, 11))
	assert.True(t, a.Overlaps(12, 18))
	assert.False(t, a.Overlaps(20, 30))
	assert.False(t, a.Overlaps(0, 10))
}

func TestMetaTaskValueNamed(t *testing.T) {
	task := &MetaTask{Values: []MetaTaskValue{{ID: 1, Name: "Affirmed"}, {ID: 2, Name: "Negated"}}}

	v, ok := task.ValueNamed("Negated")
	require.True(t, ok)
	assert.Equal(t, uint(2), v.ID)

	_, ok = task.ValueNamed("Hypothetical")
	assert.False(t, ok)
}
