package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"mailcraft.ai/internal/persistence/indexdb"
)

// admin inspects a mailcraft index database.
//
//	admin -db ./data/index.db rooms
//	admin -db ./data/index.db rounds ROOM
//	admin -db ./data/index.db incidents ROOM
func main() {
	dbPath := flag.String("db", "./data/index.db", "path to index.db")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	r, err := indexdb.OpenReader(*dbPath)
	if err != nil {
		log.Fatalf("open %s: %v", *dbPath, err)
	}
	defer r.Close()

	switch args[0] {
	case "rooms":
		rooms, err := r.ListRooms()
		if err != nil {
			log.Fatalf("list rooms: %v", err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CODE\tCREATED\tEVENTS\tINCIDENTS")
		for _, rm := range rooms {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", rm.Code, rm.CreatedAt, rm.Events, rm.Incidents)
		}
		tw.Flush()

	case "rounds":
		if len(args) < 2 {
			usage()
		}
		sums, err := r.RoundSummaries(args[1])
		if err != nil {
			log.Fatalf("round summaries: %v", err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ROUND\tTEAM\tVOLUME\tDELIVERY\tZONE\tREVENUE\tCOMPLAINTS")
		for _, s := range sums {
			fmt.Fprintf(tw, "%d\t%s\t%.0f\t%.3f\t%s\t%d\t%.4f\n",
				s.Round, s.Team, s.Volume, s.DeliveryRate, s.Zone, s.Revenue, s.ComplaintRate)
		}
		tw.Flush()

	case "incidents":
		if len(args) < 2 {
			usage()
		}
		incs, err := r.Incidents(args[1])
		if err != nil {
			log.Fatalf("incidents: %v", err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ROUND\tID\tNAME\tCATEGORY\tTEAM\tCLIENT")
		for _, i := range incs {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				i.RoundTriggered, i.IncidentID, i.Name, i.Category, i.Team, i.SelectedClient)
		}
		tw.Flush()

	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin [-db path] rooms | rounds ROOM | incidents ROOM")
	os.Exit(2)
}
