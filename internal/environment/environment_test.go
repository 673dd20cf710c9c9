package environment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/environment"
)

func TestStatic_UserAgent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Mozilla/5.0", environment.Static{Agent: "Mozilla/5.0"}.UserAgent())
	assert.Equal(t, environment.DefaultUserAgent, environment.Static{Agent: "  "}.UserAgent())
}

func TestObserved_UserAgent(t *testing.T) {
	t.Parallel()

	o := environment.NewObserved("")
	assert.Equal(t, environment.DefaultUserAgent, o.UserAgent())

	o.Observe("Mozilla/5.0 (X11; Linux x86_64)")
	assert.Equal(t, "Mozilla/5.0 (X11; Linux x86_64)", o.UserAgent())

	o.Observe("")
	assert.Equal(t, "Mozilla/5.0 (X11; Linux x86_64)", o.UserAgent(), "blank values must not overwrite")
}
