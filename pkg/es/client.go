// Package es 提供了与 Elasticsearch 交互的客户端功能，用于 FITS 全文头信息的索引与检索。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"fitsstore-go/internal/config"
	"fitsstore-go/pkg/log"
)

// HeaderDocument 是索引到 Elasticsearch 中的一份全文头信息。
type HeaderDocument struct {
	DiskFileID uint       `json:"diskfile_id"`
	Filename   string     `json:"filename"`
	Instrument string     `json:"instrument,omitempty"`
	DataLabel  string     `json:"data_label,omitempty"`
	UTDateTime *time.Time `json:"ut_datetime,omitempty"`
	FullText   string     `json:"fulltext"`
}

// Hit 是一条检索结果。
type Hit struct {
	DiskFileID uint    `json:"diskfile_id"`
	Filename   string  `json:"filename"`
	Instrument string  `json:"instrument"`
	DataLabel  string  `json:"data_label"`
	Score      float64 `json:"score"`
}

// Client 封装了 Elasticsearch 客户端与索引名。
type Client struct {
	es    *elasticsearch.Client
	index string
}

// NewClient 初始化 Elasticsearch 客户端并确保索引存在。
func NewClient(esCfg config.ElasticsearchConfig) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{es: client, index: esCfg.IndexName}
	if err := c.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return c, nil
}

const mapping = `{
	"mappings": {
		"properties": {
			"diskfile_id": { "type": "long" },
			"filename": { "type": "keyword" },
			"instrument": { "type": "keyword" },
			"data_label": { "type": "keyword" },
			"ut_datetime": { "type": "date" },
			"fulltext": { "type": "text", "analyzer": "standard" }
		}
	}
}`

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (c *Client) createIndexIfNotExists() error {
	res, err := c.es.Indices.Exists([]string{c.index})
	if err != nil {
		log.Errorf("[ES] 检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if res.StatusCode == http.StatusOK {
		log.Infof("[ES] 索引 '%s' 已存在", c.index)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = c.es.Indices.Create(c.index, c.es.Indices.Create.WithBody(strings.NewReader(mapping)))
	if err != nil {
		log.Errorf("[ES] 创建索引 '%s' 失败: %v", c.index, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[ES] 创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.index, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}
	log.Infof("[ES] 索引 '%s' 创建成功", c.index)
	return nil
}

// IndexHeader 以 diskfile_id 为文档 ID 写入一份全文头信息。
func (c *Client) IndexHeader(ctx context.Context, doc HeaderDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: strconv.FormatUint(uint64(doc.DiskFileID), 10),
		Body:       bytes.NewReader(docBytes),
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[ES] 索引文档出错: %s", res.String())
		return errors.New("failed to index header")
	}
	return nil
}

// Search 在全文头信息中检索 q，最多返回 size 条。
func (c *Client) Search(ctx context.Context, q string, size int) ([]Hit, error) {
	body, err := json.Marshal(searchQuery(q, size))
	if err != nil {
		return nil, err
	}
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search error: %s", res.String())
	}
	return parseHits(res.Body)
}

func searchQuery(q string, size int) map[string]interface{} {
	return map[string]interface{}{
		"size":    size,
		"_source": []string{"diskfile_id", "filename", "instrument", "data_label"},
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"fulltext": map[string]interface{}{"query": q, "operator": "and"},
			},
		},
	}
}

func parseHits(r io.Reader) ([]Hit, error) {
	var resp struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source Hit     `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, err
	}
	out := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hit := h.Source
		hit.Score = h.Score
		out = append(out, hit)
	}
	return out, nil
}
