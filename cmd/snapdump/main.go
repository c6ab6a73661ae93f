// Command snapdump runs a scripted process group against a shared snapshot
// registry and prints the diagnostic dumps an operator would see, including
// the slot table, the cursor dump ring, and a reader's local cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/parallaxdb/sharedsnap"
)

func main() {
	sessions := flag.Int("sessions", 3, "number of concurrent writer sessions")
	cursors := flag.Int("cursors", 5, "cursor snapshots to publish per session")
	flag.Parse()

	reg := sharedsnap.NewRegistry(sharedsnap.Options{
		MaxConnections: *sessions,
		AddTimeout:     time.Second,
	})

	for i := 0; i < *sessions; i++ {
		sessionID := int32(100 + i)

		writerProc := sharedsnap.NewProc(int32(1000+i), sharedsnap.RoleWriter)
		writer, err := reg.AddSharedSnapshot("snapdump writer", sessionID, writerProc)
		if err != nil {
			log.Fatal(err)
		}

		readerProc := sharedsnap.NewProc(int32(2000+i), sharedsnap.RoleReader)
		reader, err := reg.LookupSharedSnapshot(context.Background(),
			"snapdump reader", "snapdump writer", sessionID, writerProc, readerProc)
		if err != nil {
			log.Fatal(err)
		}

		writer.Slot().Lock()
		for c := 0; c < *cursors; c++ {
			tag := sharedsnap.SyncTag(c + 1)
			snap := &sharedsnap.Snapshot{
				Xmin:   sharedsnap.TxID(500 + c),
				Xmax:   sharedsnap.TxID(510 + c),
				CurCID: sharedsnap.CommandID(c),
				XIP:    []sharedsnap.TxID{sharedsnap.TxID(501 + c)},
			}
			if err := writer.Publish(tag, snap, true); err != nil {
				log.Fatal(err)
			}
		}
		writer.Slot().Unlock()

		reader.Slot().RLock()
		if _, err := reader.Sync(1, true); err != nil {
			log.Fatal(err)
		}
		reader.Slot().RUnlock()

		fmt.Printf("--- session %d ---\n", sessionID)
		fmt.Print(writer.Dump())
		fmt.Print(reader.Dump())
	}

	fmt.Println("--- slot table ---")
	fmt.Println(reg.SlotTable().Dump())
}
