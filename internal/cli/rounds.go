package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/store"
)

// RoundRecord is one recorded round in command output.
type RoundRecord struct {
	ID           string            `json:"id"`
	Entity       string            `json:"entity"`
	Seq          int64             `json:"seq"`
	Outcome      store.Outcome     `json:"outcome"`
	Winner       string            `json:"winner,omitempty"`
	Bid          float64           `json:"bid,omitempty"`
	Bids         []store.BidRecord `json:"bids"`
	Writes       int               `json:"writes"`
	SnapshotHash string            `json:"snapshot_hash"`
	Error        string            `json:"error,omitempty"`
}

// NewRoundsCommand creates the rounds command.
func NewRoundsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "rounds [entity]",
		Short: "Show the recorded auction rounds",
		Long: `Show the audit log of auction rounds, oldest first, for one entity or for
every entity. With --limit only the most recent rounds are shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			var e entity.Entity
			if len(args) == 1 {
				var err error
				if e, err = parseEntity(args[0]); err != nil {
					return formatter.Fail("list rounds", err)
				}
			}

			sess, err := openSession(cmd.Context(), rootOpts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			rounds, err := sess.store.ListRounds(cmd.Context(), e, limit)
			if err != nil {
				return formatter.Fail("list rounds", err)
			}
			records := make([]RoundRecord, len(rounds))
			for i, r := range rounds {
				records[i] = RoundRecord{
					ID:           r.ID,
					Entity:       r.Entity.String(),
					Seq:          r.Seq,
					Outcome:      r.Outcome,
					Winner:       r.Winner,
					Bid:          r.Bid,
					Bids:         r.Bids,
					Writes:       r.Writes,
					SnapshotHash: r.SnapshotHash,
					Error:        r.Error,
				}
				if records[i].Bids == nil {
					records[i].Bids = []store.BidRecord{}
				}
			}
			return formatter.Render(records, func(w io.Writer) {
				if len(records) == 0 {
					fmt.Fprintln(w, "No rounds recorded")
				}
				for _, r := range records {
					line := fmt.Sprintf("[%d] %s %s %s", r.Seq, r.ID, r.Entity, r.Outcome)
					if r.Winner != "" {
						line += fmt.Sprintf(" %s bid=%v", r.Winner, r.Bid)
					}
					if r.Writes > 0 {
						line += fmt.Sprintf(" writes=%d", r.Writes)
					}
					fmt.Fprintln(w, line)
					if r.Error != "" {
						fmt.Fprintf(w, "    %s\n", r.Error)
					}
				}
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "show only the most recent N rounds (0 for all)")
	return cmd
}
