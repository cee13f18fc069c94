// Command ragctl 在命令行中直接操作向量索引：切块预览、文档入库、提问与删除。
// 它与服务端共用配置文件，但不依赖 MySQL、MinIO 或 Kafka。
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"doc-whisper-go/internal/config"
	"doc-whisper-go/internal/pipeline"
	"doc-whisper-go/internal/vectorindex"
	"doc-whisper-go/pkg/embedding"
	"doc-whisper-go/pkg/llm"
	"doc-whisper-go/pkg/log"
	"doc-whisper-go/pkg/tika"
)

// app 持有子命令共享的依赖，测试中可直接注入。
type app struct {
	configPath string
	cfg        config.Config
	index      vectorindex.Index
	embedder   embedding.Client
	llm        llm.Client
	extractor  pipeline.TextExtractor
}

func (a *app) load() error {
	if a.index != nil {
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("加载 .env 失败: %w", err)
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	if cfg.Index.Backend == "memory" {
		log.Warnf("index.backend=memory 时索引不会在命令之间保留")
	}

	index, err := vectorindex.New(cfg)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.index = index
	a.embedder = embedding.NewClient(cfg.Embedding)
	a.llm = llm.NewClient(cfg.LLM)
	a.extractor = tika.NewClient(cfg.Tika)
	return nil
}

func (a *app) close() {
	if a.index != nil {
		_ = a.index.Close()
	}
	log.Sync()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Chunk, ingest and query documents against the vector index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "./configs/config.yaml", "config file path")

	root.AddCommand(
		newChunkCmd(a),
		newIngestCmd(a),
		newAskCmd(a),
		newDeleteCmd(a),
	)
	return root
}

func main() {
	a := &app{}
	defer a.close()
	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		a.close()
		os.Exit(1)
	}
}
