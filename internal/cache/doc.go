// Package cache 负责引擎对文件系统的全部访问：把调用方的相对路径解析到图片根目录下，
// 读取源图与派生图的大小和 mtime，并以临时文件 + rename 的方式原子写入派生图，
// 同时把派生图的 mtime 固定为源图的 mtime。mtime 是唯一的缓存元数据，没有清单或索引。
// 源图只会被 stat，从不以写方式打开。
package cache
