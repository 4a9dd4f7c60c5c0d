package workflow

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/temporal"
)

// ActivityErrorInterceptor tags untyped activity errors with the name of the
// activity that produced them, so a failed RunBackup shows up as "RunBackup"
// in the Temporal UI instead of a bare ApplicationError. Errors that already
// carry a type (CONFIGURATION_ERROR, VALIDATION_ERROR) keep it.
type ActivityErrorInterceptor struct {
	interceptor.WorkerInterceptorBase
}

func (e *ActivityErrorInterceptor) InterceptActivity(
	ctx context.Context,
	next interceptor.ActivityInboundInterceptor,
) interceptor.ActivityInboundInterceptor {
	return &activityErrorInbound{next: next}
}

type activityErrorInbound struct {
	interceptor.ActivityInboundInterceptorBase
	next interceptor.ActivityInboundInterceptor
}

func (e *activityErrorInbound) Init(outbound interceptor.ActivityOutboundInterceptor) error {
	return e.next.Init(outbound)
}

func (e *activityErrorInbound) ExecuteActivity(
	ctx context.Context,
	in *interceptor.ExecuteActivityInput,
) (interface{}, error) {
	result, err := e.next.ExecuteActivity(ctx, in)
	if err == nil {
		return result, nil
	}
	return result, typeActivityError(err, activity.GetInfo(ctx).ActivityType.Name)
}

func typeActivityError(err error, activityName string) error {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() != "" {
		return err
	}
	return temporal.NewApplicationError(err.Error(), activityName, err)
}
