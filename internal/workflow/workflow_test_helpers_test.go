package workflow

import (
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/hostbackup/internal/activity"
)

// registerActivities gives the test environment the activity signatures so
// mocked results can be decoded into the types the workflows expect.
func registerActivities(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivity(&activity.Backup{})
}
