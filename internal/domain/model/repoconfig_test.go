package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidMode(t *testing.T) {
	assert.True(t, ValidMode("observe"))
	assert.True(t, ValidMode("pr"))
	assert.True(t, ValidMode("disabled"))
	assert.False(t, ValidMode(""))
	assert.False(t, ValidMode("PR"))
	assert.False(t, ValidMode("yolo"))
}

func TestDeriveRepoID(t *testing.T) {
	assert.Equal(t, "octo_widgets", DeriveRepoID("octo", "widgets"))
}

func TestFullName(t *testing.T) {
	r := RepoConfig{Owner: "octo", Name: "widgets"}
	assert.Equal(t, "octo/widgets", r.FullName())
}
