package verifyservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentsObservedSubject(t *testing.T) {
	assert.Equal(t, "payments.observed", PaymentsObservedSubject)
}

func TestMemoProgramID_WellFormed(t *testing.T) {
	assert.Equal(t, "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr", MemoProgramID.String())
}
