package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"perpetuals/internal/feed"
	"perpetuals/internal/perp"
	"perpetuals/internal/pyth"
)

func newEncodeObservationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode-observation",
		Short: "Encode an oracle observation and print, write or publish it",
		RunE:  runEncodeObservation,
	}
	cmd.Flags().String("kind", "pyth", "observation kind (pyth, custom)")
	cmd.Flags().String("feed-id", perp.DefaultFeedID, "pyth feed id")
	cmd.Flags().Int64("mantissa", 0, "pyth price mantissa")
	cmd.Flags().Int32("expo", -8, "pyth price exponent")
	cmd.Flags().Uint64("conf", 0, "pyth confidence")
	cmd.Flags().Int64("publish-time", 0, "pyth publish time in unix seconds (0 means now)")
	cmd.Flags().Bool("partial", false, "mark the pyth update as partially verified")
	cmd.Flags().String("price", "", "custom price in USD")
	cmd.Flags().String("out", "", "write the observation to this file")
	cmd.Flags().String("redis-key", "", "publish the observation under this redis key")
	return cmd
}

func runEncodeObservation(cmd *cobra.Command, _ []string) error {
	cfg, err := loadBase(cmd)
	if err != nil {
		return err
	}
	kind, _ := cmd.Flags().GetString("kind")

	var observation []byte
	switch kind {
	case "pyth":
		observation, err = encodePyth(cmd)
	case "custom":
		priceFlag, _ := cmd.Flags().GetString("price")
		var price uint64
		price, err = parsePrice("price", priceFlag)
		if err == nil {
			observation = binary.LittleEndian.AppendUint64(nil, price)
		}
	default:
		err = fmt.Errorf("unknown observation kind: %s", kind)
	}
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out != "" {
		if err := os.WriteFile(out, observation, 0o644); err != nil {
			return fmt.Errorf("write observation: %w", err)
		}
	}

	redisKey, _ := cmd.Flags().GetString("redis-key")
	if redisKey != "" {
		if cfg.RedisAddr == "" {
			return fmt.Errorf("redis-addr is required to publish")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := feed.Publish(ctx, client, redisKey, observation); err != nil {
			return err
		}
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(observation))
	return err
}

func encodePyth(cmd *cobra.Command) ([]byte, error) {
	feedFlag, _ := cmd.Flags().GetString("feed-id")
	mantissa, _ := cmd.Flags().GetInt64("mantissa")
	expo, _ := cmd.Flags().GetInt32("expo")
	conf, _ := cmd.Flags().GetUint64("conf")
	publishTime, _ := cmd.Flags().GetInt64("publish-time")
	partial, _ := cmd.Flags().GetBool("partial")

	feedID, err := pyth.ParseFeedID(feedFlag)
	if err != nil {
		return nil, err
	}
	if publishTime == 0 {
		publishTime = time.Now().Unix()
	}

	update := pyth.PriceUpdate{
		Verification: pyth.VerificationLevel{Full: !partial},
		Message: pyth.PriceMessage{
			FeedID:          feedID,
			Price:           mantissa,
			Conf:            conf,
			Exponent:        expo,
			PublishTime:     publishTime,
			PrevPublishTime: publishTime,
			EMAPrice:        mantissa,
			EMAConf:         conf,
		},
	}
	return pyth.Encode(update), nil
}
