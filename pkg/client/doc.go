// Package client is the Go SDK for the chain-of-custody API.
//
// # Connecting
//
// With a caller token issued by the server operator:
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithBearerToken(token),
//	)
//
// Against a development server running without a token secret, pass the
// identity directly; it is sent in the X-Caller-Identity header:
//
//	c, _ := client.New("http://localhost:8080", client.WithIdentity("0xpolice"))
//
// # Recording custody
//
//	entry, err := c.AddEvidence(ctx, caseID, itemID)
//	entry, err = c.Checkout(ctx, itemID)
//	entry, err = c.Checkin(ctx, itemID)
//	entry, err = c.Remove(ctx, itemID, "RELEASED", "Owner X")
//
// Every mutation returns the history entry it appended.
//
// # Errors
//
// Non-2xx responses are returned as *APIError. Match on the code:
//
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) && apiErr.Code == client.CodeInvalidTransition {
//	    // item was not in the expected state
//	}
//
// # Queries
//
// Reads are public and need no identity:
//
//	item, _ := c.GetItem(ctx, itemID)
//	history, _ := c.History(ctx, itemID)
//	cases, _ := c.ListCases(ctx)
//	res, _ := c.VerifyLedger(ctx)
package client
