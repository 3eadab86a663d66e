// Package client is a Go client for the bioverify HTTP API.
//
// A client targets one server base URL. When the server runs with
// api.jwt_secret set, pass a token issued by "bioverify token":
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithBearerToken(os.Getenv("BIOVERIFY_TOKEN")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Linking and verifying
//
//	acct, err := c.LinkAccount(ctx, "user-42", "instagram", "alice")
//	// ask the user to put *acct.VerificationCode in their bio, then:
//	summary, err := c.VerifyUser(ctx, "user-42", false)
//
// VerifyUser returns ErrRecentlyVerified when every account was checked
// inside the server's staleness window; pass force=true to re-check anyway.
//
// # Single checks
//
//	res, err := c.Verify(ctx, client.VerifyRequest{
//	    Platform:     "tiktok",
//	    Username:     "@bob",
//	    ExpectedCode: "CASHCORE123456",
//	})
package client
