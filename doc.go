// Package mmailer connects to the MAILLIST database and exposes the User and
// UsersCompleted tables.
//
// Open returns a Client owned by the caller. Establish returns the
// process-wide Client and connects only once:
//
//	client, err := mmailer.Establish(ctx, nil)
//	if err != nil {
//		return err
//	}
//	pending, err := client.Pending(ctx, 100)
package mmailer
