// Package quotagate is an embedded Go client for quotagate quota enforcement.
//
// The client talks directly to the shared Valkey or Redis state, so services
// can reserve quota in-process without a hop through the HTTP API. Every
// process must be configured with the same plans and key prefix.
//
//	client, _ := quotagate.New(ctx,
//	    quotagate.WithValkey("localhost:6379", ""),
//	    quotagate.WithPlans(map[string]map[string]int64{
//	        "free": {"AI_CALL": 50},
//	        "pro":  {"AI_CALL": 5000},
//	    }),
//	)
//	defer client.Close()
//
// # Reserve and release
//
//	d, err := client.Reserve(ctx, quotagate.ReserveRequest{
//	    AccountID: "acc-1", Resource: quotagate.AICall, Amount: 1, CorrelationID: jobID,
//	})
//	if err == nil && d.Allowed() {
//	    if workErr := generate(ctx); workErr != nil {
//	        _, _ = client.Release(ctx, jobID)
//	    }
//	}
//
// # Guard
//
// Guard does the same in one call. Transient outcomes are retried under the
// same correlation id; pass WithCorrelationID to reuse a job id across calls:
//
//	err := client.Guard(ctx, "acc-1", quotagate.AICall, 1, func(ctx context.Context) error {
//	    return generate(ctx)
//	}, quotagate.WithCorrelationID(jobID))
//	var denied *quotagate.DeniedError
//	if errors.As(err, &denied) {
//	    // show denied.Decision.Remediation to the user
//	}
package quotagate
