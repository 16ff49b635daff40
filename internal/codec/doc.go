// Package codec 维护派生所需的能力注册表：按扩展名（png、jpg、jpeg）注册的源图解码器，
// 以及按名称（webp、avif）注册的目标格式。目标格式位于各自的子包中，在 init() 中完成注册，
// 新格式也按同样方式接入。
//
// 解码结果统一为 Bitmap：源图在内存中的真彩色副本，多次质量尝试只读共享。
package codec
