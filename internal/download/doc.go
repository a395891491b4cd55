// Package download implements the queue's Downloader: it resolves a playable
// stream URL through the mirror client and copies the stream to the download
// directory.
//
// Transfers are written to a partial file beside the destination and renamed
// into place only after the whole body has arrived, so the download directory
// never holds a truncated track. An existing destination is treated as a
// completed download and is never overwritten.
package download
