// Package natsclient wraps a NATS connection and its JetStream context for
// the JetStream log adapter and blob store.
//
// Every JetStream call goes through Client.Do, which feeds a circuit
// breaker: after a configurable number of consecutive failures the circuit
// opens and calls fail fast with ErrCircuitOpen until the backoff elapses.
// The backoff doubles on each opening up to a maximum. Not-found answers
// (missing key, missing message) do not count as failures.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//		natsclient.WithLogger(logger),
//		natsclient.WithCircuitBreakerThreshold(3),
//	)
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close(context.Background())
//
// TestClient starts a NATS server in a container via testcontainers for
// integration tests.
package natsclient
