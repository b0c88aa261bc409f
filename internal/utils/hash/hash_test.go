package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromFieldsIsOrderIndependent(t *testing.T) {
	a := FromFields(map[string]string{"title": "HR support", "naics": "541612"}).ComputeHash()
	b := FromFields(map[string]string{"NAICS": " 541612 ", "TITLE": "HR support"}).ComputeHash()
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c := FromFields(map[string]string{"TITLE": "Other"}).ComputeHash()
	assert.NotEqual(t, a, c)
}
