package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewOracleRegistersBothMessageTypes(t *testing.T) {
	o := newOracle()

	id, err := o.TypeOf(JoinRequest{})
	assert.NoError(t, err)
	assert.Equal(t, typeJoinRequest, id)

	id, err = o.TypeOf(ChatLine{})
	assert.NoError(t, err)
	assert.Equal(t, typeChatLine, id)
}
