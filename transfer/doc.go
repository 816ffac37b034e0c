// Package transfer streams remote files to local storage.
//
// Bodies are copied in 32 KiB chunks into "<path>.part", which is renamed
// to the final path once complete. The service offers no byte ranges, so a
// failed attempt starts over from the first byte:
//
//	engine := transfer.NewEngine(client, credentials, transfer.Options{
//	    Attempts:   5,
//	    Backoff:    time.Second,
//	    MaxBackoff: 30 * time.Second,
//	})
//	err := engine.Download(ctx, url, "media/Go.pdf")
//
// # Retries
//
// Transport errors, interrupted bodies, 5xx and 429 responses are retried
// with exponential backoff and jitter up to Attempts; then a *TransferError
// is returned. A 401 triggers one credential refresh and one more request
// with the new header. Other 4xx responses fail at once.
package transfer
