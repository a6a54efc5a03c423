// Package client is the Go SDK for the EthosGuard audit ledger API.
//
// Producers submit decisions with a token issued from the server's shared
// secret:
//
//	c, err := client.New("http://localhost:8080", client.WithBearerToken(token))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := c.RecordDecision(ctx, client.Decision{
//	    ModelID:  "credit_risk_v1",
//	    Features: []float64{0.8, 0.2},
//	    Output:   0.95,
//	    Outcome:  "approved",
//	})
//	fmt.Println(res.Entry.Position, res.Entry.Hash)
//
// # Auditing
//
// Reads need no token:
//
//	v, _ := c.Verify(ctx)       // server-side walk of the whole chain
//	entries, _ := c.Export(ctx) // every entry, for offline verification
package client
