package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/chipletsim/chipletc/internal/modelcfg"
	"github.com/chipletsim/chipletc/internal/stagegraph"
)

func generateCmd() *cli.Command {
	var (
		configPath string
		outputPath string
		name       string

		seqLength        int64
		batch            int64
		dtypeBytes       int64
		layers           int64
		hiddenSize       int64
		intermediateSize int64
		numExperts       int64
		expertsPerTok    int64

		digitalChiplets int64
		rramChiplets    int64
		latencyScale    float64
		chunkBytes      int64
	)

	return &cli.Command{
		Name:  "generate",
		Usage: "Generate a chiplet stage-graph spec from a model description",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to a HuggingFace-style config.json (optional)",
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output JSON file path",
				Required:    true,
				Destination: &outputPath,
			},
			&cli.StringFlag{
				Name:        "name",
				Usage:       "spec name (defaults to the model type)",
				Destination: &name,
			},
			&cli.Int64Flag{
				Name:        "seq-length",
				Usage:       "sequence length",
				Value:       stagegraph.DefaultSeqLength,
				Destination: &seqLength,
			},
			&cli.Int64Flag{
				Name:        "batch",
				Usage:       "batch size",
				Value:       stagegraph.DefaultBatch,
				Destination: &batch,
			},
			&cli.Int64Flag{
				Name:        "dtype-bytes",
				Usage:       "element width in bytes",
				Value:       stagegraph.DefaultDtypeBytes,
				Destination: &dtypeBytes,
			},
			&cli.Int64Flag{
				Name:        "layers",
				Usage:       "override the layer count",
				Destination: &layers,
			},
			&cli.Int64Flag{
				Name:        "hidden-size",
				Usage:       "override hidden_size",
				Destination: &hiddenSize,
			},
			&cli.Int64Flag{
				Name:        "intermediate-size",
				Usage:       "override intermediate_size",
				Destination: &intermediateSize,
			},
			&cli.Int64Flag{
				Name:        "num-experts",
				Usage:       "number of experts",
				Destination: &numExperts,
			},
			&cli.Int64Flag{
				Name:        "experts-per-tok",
				Usage:       "experts activated per token",
				Destination: &expertsPerTok,
			},
			&cli.Int64Flag{
				Name:        "digital-chiplets",
				Usage:       "digital chiplet count",
				Value:       stagegraph.DefaultDigitalChiplets,
				Destination: &digitalChiplets,
			},
			&cli.Int64Flag{
				Name:        "rram-chiplets",
				Usage:       "RRAM chiplet count",
				Value:       stagegraph.DefaultRRAMChiplets,
				Destination: &rramChiplets,
			},
			&cli.Float64Flag{
				Name:        "digital-latency-scale",
				Usage:       "latency scale factor for digital stages",
				Value:       1.0,
				Destination: &latencyScale,
			},
			&cli.Int64Flag{
				Name:        "chunk-bytes",
				Usage:       "pipeline chunk size in bytes",
				Value:       stagegraph.DefaultChunkBytes,
				Destination: &chunkBytes,
			},
		}, loggingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fileCfg := LoadConfig()
			applyGenerateConfig(cmd, fileCfg, &digitalChiplets, &rramChiplets, &chunkBytes, &latencyScale)
			log := newLogger()

			modelConfig, err := modelcfg.Load(configPath)
			if err != nil {
				return err
			}

			shape, err := modelcfg.Resolve(modelConfig, modelcfg.Overrides{
				HiddenSize:       int(hiddenSize),
				IntermediateSize: int(intermediateSize),
				Layers:           int(layers),
				NumExperts:       int(numExperts),
				ExpertsPerToken:  int(expertsPerTok),
				SeqLength:        int(seqLength),
				Batch:            int(batch),
				DtypeBytes:       int(dtypeBytes),
			})
			if err != nil {
				return err
			}

			params := stagegraph.Params{
				Layers:              shape.NumLayers,
				HiddenSize:          shape.HiddenSize,
				IntermediateSize:    shape.IntermediateSize,
				NumExperts:          shape.NumExperts,
				ExpertsPerToken:     shape.ExpertsPerToken,
				SeqLength:           shape.SeqLength,
				Batch:               shape.Batch,
				DtypeBytes:          shape.DtypeBytes,
				DigitalChiplets:     int(digitalChiplets),
				RRAMChiplets:        int(rramChiplets),
				DigitalLatencyScale: latencyScale,
				ChunkBytes:          int(chunkBytes),
			}

			doc := stagegraph.Emit(modelConfig.SpecName(name), stagegraph.Build(params), params)
			if err := stagegraph.WriteFile(outputPath, doc); err != nil {
				return err
			}

			log.Info("wrote spec",
				"path", outputPath,
				"name", doc.Name,
				"stages", len(doc.Sequence),
				"layers", params.Layers,
				"experts", params.NumExperts,
				"chunks_per_layer", stagegraph.PlanChunks(
					shape.SeqLength*shape.Batch, shape.HiddenSize, shape.DtypeBytes, params.ChunkBytes).NumChunks())
			return nil
		},
	}
}
