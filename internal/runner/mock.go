package runner

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// Mock is a testify mock of Runner. Expectations receive the Cmd value.
type Mock struct {
	mock.Mock
}

func (m *Mock) Run(ctx context.Context, cmd Cmd) (Result, error) {
	args := m.Called(cmd)
	res, _ := args.Get(0).(Result)
	return res, args.Error(1)
}
