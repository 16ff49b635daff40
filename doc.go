// Package anyimage 为 PNG/JPEG 源图按需生成 WebP/AVIF 派生图，并以同目录兄弟文件的形式缓存。
//
// 派生图与源图的 mtime 完全一致时视为有效；源图发生任何变化后下一次 Produce 会重新生成。
// 编码时质量从 100 起每次降低 5，直到产出比源图更小的文件或到达 70 为止。
// Produce 永远不会返回错误：任何一个格式失败时调用方只会少拿到该格式的路径。
package anyimage
